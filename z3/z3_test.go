package z3_test

import (
	"math"
	"testing"

	"github.com/galecode/gale"
	"github.com/galecode/gale/z3"
	"github.com/google/go-cmp/cmp"
)

func TestSolver_Solve(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		t.Run("True", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{gale.NewBoolConstantExpr(true)}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("False", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{gale.NewBoolConstantExpr(false)}, nil); err != nil {
				t.Fatal(err)
			} else if satisfiable {
				t.Fatal("expected unsatisfiable")
			}
		})
	})

	t.Run("Array", func(t *testing.T) {
		t.Run("Width8", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			array := gale.NewArray(100, 1)

			if satisfiable, values, err := s.Solve(
				[]gale.Expr{
					gale.NewBinaryExpr(gale.EQ,
						array.Select(gale.NewConstantExpr(0, 64), 8, false),
						gale.NewConstantExpr(10, 8),
					),
				},
				[]*gale.Array{array},
			); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			} else if diff := cmp.Diff(values, [][]byte{{10}}); diff != "" {
				t.Fatal(diff)
			}
		})
		t.Run("Width16", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			array := gale.NewArray(100, 2)

			if satisfiable, values, err := s.Solve(
				[]gale.Expr{
					gale.NewBinaryExpr(gale.EQ,
						array.Select(gale.NewConstantExpr(0, 64), 16, false),
						gale.NewConstantExpr(0xAABB, 16),
					),
				},
				[]*gale.Array{array},
			); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			} else if diff := cmp.Diff(values, [][]byte{{0xAA, 0xBB}}); diff != "" {
				t.Fatal(diff)
			}
		})
		t.Run("Named", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			array := gale.NewArray(100, 1)
			array.Name = "input"

			if satisfiable, values, err := s.Solve(
				[]gale.Expr{
					gale.NewBinaryExpr(gale.EQ,
						array.Select(gale.NewConstantExpr(0, 64), 8, false),
						gale.NewConstantExpr(0x7F, 8),
					),
				},
				[]*gale.Array{array},
			); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			} else if diff := cmp.Diff(values, [][]byte{{0x7F}}); diff != "" {
				t.Fatal(diff)
			}
		})
	})

	t.Run("Extract", func(t *testing.T) {
		t.Run("Bool", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			// Extract 1 bit
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.ExtractExpr{
					Expr:   gale.NewConstantExpr(0x04, 64),
					Offset: 2,
					Width:  1,
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}

			// Extract 0 bit.
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.ExtractExpr{
					Expr:   gale.NewConstantExpr(0x04, 64),
					Offset: 6,
					Width:  1,
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if satisfiable {
				t.Fatal("expected unsatisfiable")
			}
		})
		t.Run("Int", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.ExtractExpr{
						Expr:   gale.NewConstantExpr(0xAABB, 16),
						Offset: 8,
						Width:  8,
					},
					RHS: gale.NewConstantExpr(0xAA, 8),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("Cast", func(t *testing.T) {
		t.Run("Signed", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			value := -200
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.CastExpr{
						Src:    gale.NewConstantExpr(uint64(uint16(int16(value))), 16),
						Width:  32,
						Signed: true,
					},
					RHS: gale.NewConstantExpr(uint64(uint32(int32(value))), 32),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SignedBool", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			value := -1
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.CastExpr{
						Src:    gale.NewBoolConstantExpr(true),
						Width:  16,
						Signed: true,
					},
					RHS: gale.NewConstantExpr(uint64(uint16(int16(value))), 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})

		t.Run("Unsigned", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.CastExpr{
						Src:   gale.NewConstantExpr(200, 16),
						Width: 32,
					},
					RHS: gale.NewConstantExpr(200, 32),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("UnsignedBool", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.CastExpr{
						Src:   gale.NewBoolConstantExpr(true),
						Width: 16,
					},
					RHS: gale.NewConstantExpr(1, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("Not", func(t *testing.T) {
		t.Run("Bool", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.NotExpr{
						Expr: gale.NewBoolConstantExpr(true),
					},
					RHS: gale.NewBoolConstantExpr(false),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("Int", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.NotExpr{
						Expr: gale.NewConstantExpr(0xFF00FF00, 16),
					},
					RHS: gale.NewConstantExpr(0x00FF00FF, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("Ite", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)

		array := gale.NewArray(100, 1)
		cond := array.Select(gale.NewConstantExpr64(0), 1, false)

		if satisfiable, values, err := s.Solve([]gale.Expr{
			&gale.BinaryExpr{
				Op: gale.EQ,
				LHS: &gale.IteExpr{
					Cond: cond,
					Then: gale.NewConstantExpr(5, 8),
					Else: gale.NewConstantExpr(9, 8),
				},
				RHS: gale.NewConstantExpr(9, 8),
			},
		}, []*gale.Array{array}); err != nil {
			t.Fatal(err)
		} else if !satisfiable {
			t.Fatal("expected satisfiable")
		} else if diff := cmp.Diff(values, [][]byte{{0x00}}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("BinaryExpr", func(t *testing.T) {
		t.Run("ADD", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.BinaryExpr{
						Op:  gale.ADD,
						LHS: gale.NewConstantExpr(1000, 16),
						RHS: gale.NewConstantExpr(200, 16),
					},
					RHS: gale.NewConstantExpr(1200, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SUB", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.BinaryExpr{
						Op:  gale.SUB,
						LHS: gale.NewConstantExpr(1000, 16),
						RHS: gale.NewConstantExpr(200, 16),
					},
					RHS: gale.NewConstantExpr(800, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("MUL", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.BinaryExpr{
						Op:  gale.MUL,
						LHS: gale.NewConstantExpr(30, 16),
						RHS: gale.NewConstantExpr(200, 16),
					},
					RHS: gale.NewConstantExpr(6000, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("UDIV", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.BinaryExpr{
						Op:  gale.UDIV,
						LHS: gale.NewConstantExpr(5000, 16),
						RHS: gale.NewConstantExpr(30, 16),
					},
					RHS: gale.NewConstantExpr(166, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SDIV", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			x, y := -30, -166
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.BinaryExpr{
						Op:  gale.SDIV,
						LHS: gale.NewConstantExpr(5000, 16),
						RHS: gale.NewConstantExpr(uint64(uint16(int16(x))), 16),
					},
					RHS: gale.NewConstantExpr(uint64(uint16(int16(y))), 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("UREM", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.BinaryExpr{
						Op:  gale.UREM,
						LHS: gale.NewConstantExpr(5000, 16),
						RHS: gale.NewConstantExpr(30, 16),
					},
					RHS: gale.NewConstantExpr(20, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SREM", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			x, y := -30, 20
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.BinaryExpr{
						Op:  gale.SREM,
						LHS: gale.NewConstantExpr(5000, 16),
						RHS: gale.NewConstantExpr(uint64(uint16(int16(x))), 16),
					},
					RHS: gale.NewConstantExpr(uint64(uint16(int16(y))), 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("AND", func(t *testing.T) {
			t.Run("Bool", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.AND,
							LHS: gale.NewBoolConstantExpr(true),
							RHS: gale.NewBoolConstantExpr(true),
						},
						RHS: gale.NewBoolConstantExpr(true),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
			t.Run("Int", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.AND,
							LHS: gale.NewConstantExpr(0x0FF0, 16),
							RHS: gale.NewConstantExpr(0xFF00, 16),
						},
						RHS: gale.NewConstantExpr(0x0F00, 16),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
		})
		t.Run("OR", func(t *testing.T) {
			t.Run("Bool", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.OR,
							LHS: gale.NewBoolConstantExpr(true),
							RHS: gale.NewBoolConstantExpr(false),
						},
						RHS: gale.NewBoolConstantExpr(true),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
			t.Run("Int", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.OR,
							LHS: gale.NewConstantExpr(0x0FF0, 16),
							RHS: gale.NewConstantExpr(0xFF00, 16),
						},
						RHS: gale.NewConstantExpr(0xFFF0, 16),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
		})
		t.Run("XOR", func(t *testing.T) {
			t.Run("Bool", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.XOR,
							LHS: gale.NewBoolConstantExpr(true),
							RHS: gale.NewBoolConstantExpr(true),
						},
						RHS: gale.NewBoolConstantExpr(false),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
			t.Run("Int", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.XOR,
							LHS: gale.NewConstantExpr(0x0FF0, 16),
							RHS: gale.NewConstantExpr(0xFF00, 16),
						},
						RHS: gale.NewConstantExpr(0xF0F0, 16),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
		})
		t.Run("SHL", func(t *testing.T) {
			t.Run("Constant", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.SHL,
							LHS: gale.NewConstantExpr(0x0FF0, 16),
							RHS: gale.NewConstantExpr(4, 16),
						},
						RHS: gale.NewConstantExpr(0xFF00, 16),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
			t.Run("Symbolic", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				array := gale.NewArray(100, 2)
				if satisfiable, values, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.SHL,
							LHS: gale.NewConstantExpr(0x0FF0, 16),
							RHS: array.Select(gale.NewConstantExpr64(0), 16, false),
						},
						RHS: gale.NewConstantExpr(0xFF00, 16),
					},
				},
					[]*gale.Array{array},
				); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				} else if diff := cmp.Diff(values, [][]byte{{0x00, 0x04}}); diff != "" {
					t.Fatal(diff)
				}
			})
		})
		t.Run("LSHR", func(t *testing.T) {
			t.Run("Constant", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.LSHR,
							LHS: gale.NewConstantExpr(0x0FF0, 16),
							RHS: gale.NewConstantExpr(4, 16),
						},
						RHS: gale.NewConstantExpr(0x00FF, 16),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
			t.Run("Symbolic", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				array := gale.NewArray(100, 2)
				if satisfiable, values, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.LSHR,
							LHS: gale.NewConstantExpr(0x0FF0, 16),
							RHS: array.Select(gale.NewConstantExpr64(0), 16, false),
						},
						RHS: gale.NewConstantExpr(0x00FF, 16),
					},
				},
					[]*gale.Array{array},
				); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				} else if diff := cmp.Diff(values, [][]byte{{0x00, 0x04}}); diff != "" {
					t.Fatal(diff)
				}
			})
		})
		t.Run("ASHR", func(t *testing.T) {
			t.Run("Constant", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.ASHR,
							LHS: gale.NewConstantExpr(0x0FF0, 16),
							RHS: gale.NewConstantExpr(4, 16),
						},
						RHS: gale.NewConstantExpr(0x00FF, 16),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
			t.Run("Symbolic", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				array := gale.NewArray(100, 2)
				if satisfiable, values, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op: gale.EQ,
						LHS: &gale.BinaryExpr{
							Op:  gale.ASHR,
							LHS: gale.NewConstantExpr(0xFF00, 16),
							RHS: array.Select(gale.NewConstantExpr64(0), 16, false),
						},
						RHS: gale.NewConstantExpr(0xFFF0, 16),
					},
				},
					[]*gale.Array{array},
				); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				} else if diff := cmp.Diff(values, [][]byte{{0x00, 0x04}}); diff != "" {
					t.Fatal(diff)
				}
			})
		})
		t.Run("EQ", func(t *testing.T) {
			t.Run("Bool", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op:  gale.EQ,
						LHS: gale.NewBoolConstantExpr(true),
						RHS: gale.NewBoolConstantExpr(true),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
			t.Run("ConstantTrue", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				array := gale.NewArray(100, 1)
				if satisfiable, values, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op:  gale.EQ,
						LHS: gale.NewBoolConstantExpr(true),
						RHS: array.Select(gale.NewConstantExpr64(0), 1, false),
					},
				}, []*gale.Array{array}); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				} else if diff := cmp.Diff(values, [][]byte{{0x01}}); diff != "" {
					t.Fatal(diff)
				}
			})
			t.Run("ConstantNotTrue", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				array := gale.NewArray(100, 1)
				if satisfiable, values, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op:  gale.EQ,
						LHS: gale.NewBoolConstantExpr(false),
						RHS: array.Select(gale.NewConstantExpr64(0), 1, false),
					},
				}, []*gale.Array{array}); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				} else if diff := cmp.Diff(values, [][]byte{{0x00}}); diff != "" {
					t.Fatal(diff)
				}
			})
			t.Run("Int", func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]gale.Expr{
					&gale.BinaryExpr{
						Op:  gale.EQ,
						LHS: gale.NewConstantExpr(10, 32),
						RHS: gale.NewConstantExpr(10, 32),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
		})
		t.Run("ULT", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op:  gale.ULT,
					LHS: gale.NewConstantExpr(9, 32),
					RHS: gale.NewConstantExpr(10, 32),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("ULE", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op:  gale.ULE,
					LHS: gale.NewConstantExpr(10, 32),
					RHS: gale.NewConstantExpr(10, 32),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SLT", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op:  gale.SLT,
					LHS: gale.NewConstantExpr(0xF0, 8),
					RHS: gale.NewConstantExpr(0x00, 8),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SLE", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op:  gale.SLE,
					LHS: gale.NewConstantExpr(0xF0, 8),
					RHS: gale.NewConstantExpr(0xF0, 8),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("FP", func(t *testing.T) {
		f32 := func(v float32) *gale.ConstantExpr {
			return gale.NewConstantExpr(uint64(math.Float32bits(v)), 32)
		}

		t.Run("Add", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.FPBinaryExpr{
						Op:       gale.FADD,
						Rounding: gale.RoundNearestEven,
						LHS:      f32(1.0),
						RHS:      f32(1.5),
					},
					RHS: f32(2.5),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("Lt", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.FPCompareExpr{
					Op:  gale.FOLT,
					LHS: f32(1.0),
					RHS: f32(2.0),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("Unordered", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.FPCompareExpr{
					Op:  gale.FUNO,
					LHS: f32(float32(math.NaN())),
					RHS: f32(1.0),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("IsNaN", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.FPClassifyExpr{
					Op:  gale.FIsNaN,
					Src: f32(1.0),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if satisfiable {
				t.Fatal("expected unsatisfiable")
			}
		})
		t.Run("SIToFP", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]gale.Expr{
				&gale.BinaryExpr{
					Op: gale.EQ,
					LHS: &gale.FPConvertExpr{
						Kind:     gale.SIToFP,
						Rounding: gale.RoundNearestEven,
						Src:      gale.NewConstantExpr(3, 32),
						Width:    32,
					},
					RHS: f32(3.0),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})
}

func MustCloseSolver(s *z3.Solver) {
	if err := s.Close(); err != nil {
		panic(err)
	}
}
