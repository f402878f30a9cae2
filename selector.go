package gale

// Path is one not-yet-explored branch of execution: a machine state
// snapshot, the extra constraints to assert before resuming, and the
// last visited program counter. Paths are never mutated once pushed;
// the fork discipline clones state so sibling branches cannot alias.
type Path struct {
	State       *GAState
	Constraints []Expr
	PC          uint64
}

// NewPath returns a path resuming at the state's current program counter.
func NewPath(state *GAState, constraints ...Expr) *Path {
	return &Path{
		State:       state,
		Constraints: constraints,
		PC:          state.PC(),
	}
}

// Resume opens the path's assumption scope: one constraint frame is
// pushed and the path's extra constraints asserted inside it. The
// matching pop happens when the path reaches a terminal.
func (p *Path) Resume() *GAState {
	p.State.PushConstraintFrame()
	for _, constraint := range p.Constraints {
		p.State.AddConstraint(constraint)
	}
	return p.State
}

// PathSelector decides exploration order over the frontier of paths.
type PathSelector interface {
	// SavePath pushes a path onto the frontier.
	SavePath(path *Path)

	// NextPath removes and returns the next path to execute, or nil
	// when the frontier is exhausted.
	NextPath() *Path

	// PeekPC returns the program counter of the most recently pushed
	// path without removing it.
	PeekPC() (uint64, bool)

	// Len returns the number of paths on the frontier.
	Len() int
}

// DFSSelector explores the frontier depth-first. Stack order couples
// the assumption scope to the path tree's ancestry: a path's
// constraints are asserted exactly once on entry and retracted exactly
// once on exit.
type DFSSelector struct {
	paths []*Path
}

// NewDFSSelector returns a new instance of DFSSelector.
func NewDFSSelector() *DFSSelector {
	return &DFSSelector{}
}

// SavePath pushes a path onto the stack.
func (s *DFSSelector) SavePath(path *Path) {
	s.paths = append(s.paths, path)
}

// NextPath pops the most recently pushed path.
func (s *DFSSelector) NextPath() *Path {
	if len(s.paths) == 0 {
		return nil
	}
	path := s.paths[len(s.paths)-1]
	s.paths[len(s.paths)-1] = nil
	s.paths = s.paths[:len(s.paths)-1]
	return path
}

// PeekPC returns the program counter of the most recently pushed path.
func (s *DFSSelector) PeekPC() (uint64, bool) {
	if len(s.paths) == 0 {
		return 0, false
	}
	return s.paths[len(s.paths)-1].PC, true
}

// Len returns the number of paths on the frontier.
func (s *DFSSelector) Len() int {
	return len(s.paths)
}

// BFSSelector explores the frontier breadth-first.
type BFSSelector struct {
	paths []*Path
}

// NewBFSSelector returns a new instance of BFSSelector.
func NewBFSSelector() *BFSSelector {
	return &BFSSelector{}
}

// SavePath appends a path to the queue.
func (s *BFSSelector) SavePath(path *Path) {
	s.paths = append(s.paths, path)
}

// NextPath removes the oldest path from the queue.
func (s *BFSSelector) NextPath() *Path {
	if len(s.paths) == 0 {
		return nil
	}
	path := s.paths[0]
	s.paths[0] = nil
	s.paths = s.paths[1:]
	return path
}

// PeekPC returns the program counter of the most recently pushed path.
func (s *BFSSelector) PeekPC() (uint64, bool) {
	if len(s.paths) == 0 {
		return 0, false
	}
	return s.paths[len(s.paths)-1].PC, true
}

// Len returns the number of paths on the frontier.
func (s *BFSSelector) Len() int {
	return len(s.paths)
}
