// Package workload generates a reproducible synthetic object scene and
// churns it tick by tick so the collector has something realistic to chew
// on. The same seed always yields the same scene and the same mutations.
package workload

import (
	"fmt"
	"math/rand"

	"github.com/seehuhn/mt19937"

	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/reflection"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// Team is the allegiance of an actor
type Team int32

const (
	TeamNeutral Team = iota
	TeamRed
	TeamBlue
)

// EnumName implements reflection.Enum
func (Team) EnumName() string { return "Team" }

// Actor is the main scene object. Its fields cover every reference shape the
// collector understands.
type Actor struct {
	object.Base
	Target   *Actor
	Children []*Actor
	Tags     map[string]*Actor
	Watchers map[*Actor]struct{}
	Link     reflection.Pair[int, *Actor]
	Team     Team
	Health   int
}

// Component is owned by an actor through the outer chain
type Component struct {
	object.Base
	Owner *Actor
	Peers [4]*Component
}

// Mesh carries no references; its class is never traced
type Mesh struct {
	object.Base
	Vertices []float32
}

// Stats counts what a generator did
type Stats struct {
	Created   int `json:"created"`
	Condemned int `json:"condemned"`
	Rewired   int `json:"rewired"`
	Dropped   int `json:"dropped"`
}

// Generator builds and mutates a scene. It must only be used on the
// goroutine that owns the universe.
type Generator struct {
	cfg   types.WorkloadConfig
	rng   *rand.Rand
	log   logger.Logger
	pkgs  []*object.Package
	live  []*Actor
	seq   int
	stats Stats
}

// New creates a generator seeded from cfg.Seed
func New(cfg types.WorkloadConfig, log logger.Logger) *Generator {
	rng := rand.New(mt19937.New())
	rng.Seed(cfg.Seed)
	return &Generator{cfg: cfg, rng: rng, log: log.WithComponent("workload")}
}

// RegisterClasses registers the scene classes with u
func RegisterClasses(u *object.Universe) error {
	if _, err := u.RegisterClass("Actor", (*Actor)(nil)); err != nil {
		return fmt.Errorf("failed to register Actor: %w", err)
	}
	if _, err := u.RegisterClass("Component", (*Component)(nil)); err != nil {
		return fmt.Errorf("failed to register Component: %w", err)
	}
	if _, err := u.RegisterClass("Mesh", (*Mesh)(nil)); err != nil {
		return fmt.Errorf("failed to register Mesh: %w", err)
	}
	return nil
}

// Stats returns the counters accumulated so far
func (g *Generator) Stats() Stats { return g.stats }

// Live returns the number of actors the generator still tracks
func (g *Generator) Live() int {
	g.prune()
	return len(g.live)
}

// Populate creates the initial scene: cfg.Packages packages, each holding
// cfg.ObjectsPerPackage actors. The first actor of every package is a root.
func (g *Generator) Populate(u *object.Universe) error {
	for p := 0; p < g.cfg.Packages; p++ {
		pkg, err := u.NewPackage(fmt.Sprintf("Level%d", p))
		if err != nil {
			return err
		}
		g.pkgs = append(g.pkgs, pkg)

		for i := 0; i < g.cfg.ObjectsPerPackage; i++ {
			var flags types.ObjectFlags
			if i == 0 {
				flags = types.FlagRootObject
			}
			if _, err := g.spawn(u, pkg, flags); err != nil {
				return err
			}
		}
	}
	for _, a := range g.live {
		g.wire(a)
	}

	g.log.Info("Scene populated",
		logger.WithField("packages", len(g.pkgs)),
		logger.WithField("actors", len(g.live)),
		logger.WithField("objects", u.ObjectCount()))
	return nil
}

// Tick applies one round of churn: roughly cfg.Churn of the live actors are
// condemned, rewired, dropped, or replaced by fresh ones
func (g *Generator) Tick(u *object.Universe) error {
	g.prune()
	if len(g.live) == 0 || len(g.pkgs) == 0 {
		return nil
	}

	changes := int(float64(len(g.live))*g.cfg.Churn + 0.5)
	for i := 0; i < changes; i++ {
		a := g.pick()
		if a == nil {
			break
		}
		switch g.rng.Intn(4) {
		case 0:
			if a.Flags().Has(types.FlagRootObject) {
				continue
			}
			u.BeginDestroy(a)
			g.stats.Condemned++
		case 1:
			g.wire(a)
			g.stats.Rewired++
		case 2:
			a.Target = nil
			a.Children = nil
			g.stats.Dropped++
		default:
			pkg := g.pkgs[g.rng.Intn(len(g.pkgs))]
			fresh, err := g.spawn(u, pkg, 0)
			if err != nil {
				return err
			}
			g.wire(fresh)
			a.Target = fresh
		}
	}
	return nil
}

func (g *Generator) spawn(u *object.Universe, pkg *object.Package, flags types.ObjectFlags) (*Actor, error) {
	g.seq++
	a, err := object.Create[Actor](u, fmt.Sprintf("Actor%d", g.seq), pkg, flags)
	if err != nil {
		return nil, err
	}
	a.Team = Team(g.rng.Intn(3))
	a.Health = 50 + g.rng.Intn(50)

	if g.rng.Intn(3) == 0 {
		c, err := object.Create[Component](u, "Movement", a)
		if err != nil {
			return nil, err
		}
		c.Owner = a
	}
	if g.rng.Intn(4) == 0 {
		m, err := object.Create[Mesh](u, "Mesh", a)
		if err != nil {
			return nil, err
		}
		m.Vertices = make([]float32, 3*g.rng.Intn(16))
	}

	g.live = append(g.live, a)
	g.stats.Created++
	return a, nil
}

// wire points a at a handful of random live actors
func (g *Generator) wire(a *Actor) {
	a.Target = g.pick()
	a.Children = a.Children[:0]
	for n := g.rng.Intn(3); n > 0; n-- {
		a.Children = append(a.Children, g.pick())
	}
	if g.rng.Intn(4) == 0 {
		a.Tags = map[string]*Actor{"leader": g.pick()}
	}
	if g.rng.Intn(5) == 0 {
		a.Watchers = map[*Actor]struct{}{g.pick(): {}}
	}
	if g.rng.Intn(6) == 0 {
		a.Link = reflection.MakePair(g.rng.Intn(100), g.pick())
	}
}

func (g *Generator) pick() *Actor {
	if len(g.live) == 0 {
		return nil
	}
	a := g.live[g.rng.Intn(len(g.live))]
	if a.Flags().HasAny(types.FlagDeleted | types.FlagMarkedForDelete) {
		return nil
	}
	return a
}

// prune forgets actors the collector destroyed
func (g *Generator) prune() {
	kept := g.live[:0]
	for _, a := range g.live {
		if !a.Flags().Has(types.FlagDeleted) {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(g.live); i++ {
		g.live[i] = nil
	}
	g.live = kept
}
