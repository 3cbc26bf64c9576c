package transcript

import (
	"strconv"

	"github.com/google/uuid"
)

// IDGenerator issues the stable word IDs assigned at promotion.
type IDGenerator interface {
	NewID() string
}

// UUIDGen issues random UUID strings; the production generator.
type UUIDGen struct{}

func (UUIDGen) NewID() string {
	return uuid.NewString()
}

// SequentialGen issues "w0", "w1", ... for deterministic test assertions.
type SequentialGen struct {
	n int
}

func (g *SequentialGen) NewID() string {
	id := "w" + strconv.Itoa(g.n)
	g.n++
	return id
}
