package console

import "sync/atomic"

// generation tracks which fetch round of a view-model is current. A response
// is applied only while the round that requested it is still current.
type generation struct {
	n atomic.Uint64
}

// next starts a new round, making every earlier round stale.
func (g *generation) next() uint64 {
	return g.n.Add(1)
}

func (g *generation) current(round uint64) bool {
	return g.n.Load() == round
}
