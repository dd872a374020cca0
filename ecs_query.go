package physarum

import (
	"reflect"
)

type Query1[A any] struct{ ecs *Ecs }
type Query2[A, B any] struct{ ecs *Ecs }

func MakeQuery1[A any](cmd *Commands) Query1[A]       { return Query1[A]{ecs: cmd.app.ecs} }
func MakeQuery2[A, B any](cmd *Commands) Query2[A, B] { return Query2[A, B]{ecs: cmd.app.ecs} }

func rows[A any](ecs *Ecs) ([]A, map[EntityId]int) {
	store, ok := ecs.stores[reflect.TypeFor[A]()]
	if !ok {
		return nil, nil
	}
	return store.data.([]A), store.rows
}

// Map visits every entity with an A. Returning false stops the iteration.
// Pointers are only valid inside the callback.
func (q Query1[A]) Map(m func(EntityId, *A) bool) {
	as, rowsA := rows[A](q.ecs)
	for _, eid := range q.ecs.entitiesWith(reflect.TypeFor[A]()) {
		if !m(eid, &as[rowsA[eid]]) {
			return
		}
	}
}

func (q Query2[A, B]) Map(m func(EntityId, *A, *B) bool) {
	as, rowsA := rows[A](q.ecs)
	bs, rowsB := rows[B](q.ecs)
	for _, eid := range q.ecs.entitiesWith(reflect.TypeFor[A](), reflect.TypeFor[B]()) {
		if !m(eid, &as[rowsA[eid]], &bs[rowsB[eid]]) {
			return
		}
	}
}

// GetComponent returns a pointer to the entity's T, or nil. The pointer is
// invalidated by the next command flush.
func GetComponent[T any](cmd *Commands, eid EntityId) *T {
	ts, rowsT := rows[T](cmd.app.ecs)
	r, ok := rowsT[eid]
	if !ok {
		return nil
	}
	return &ts[r]
}
