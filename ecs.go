package physarum

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

type EntityId uint64

// componentStore keeps one component type densely packed in a typed slice
// ([]T held as any) so queries can type-assert it back without reflection.
// Removal swaps the last row into the hole.
type componentStore struct {
	typ    reflect.Type
	data   any
	rows   map[EntityId]int
	owners []EntityId
}

func newComponentStore(t reflect.Type) *componentStore {
	return &componentStore{
		typ:  t,
		data: reflectSliceMake(t),
		rows: make(map[EntityId]int),
	}
}

func (s *componentStore) set(eid EntityId, value reflect.Value) {
	if r, ok := s.rows[eid]; ok {
		reflectSliceSet(s.data, r, value)
		return
	}
	s.rows[eid] = len(s.owners)
	s.owners = append(s.owners, eid)
	s.data = reflectSliceAppend(s.data, value)
}

func (s *componentStore) remove(eid EntityId) {
	r, ok := s.rows[eid]
	if !ok {
		return
	}
	last := len(s.owners) - 1
	if r != last {
		moved := s.owners[last]
		s.owners[r] = moved
		s.rows[moved] = r
	}
	s.data = reflectSliceSwapRemove(s.data, r)
	s.owners = s.owners[:last]
	delete(s.rows, eid)
}

type Ecs struct {
	idGeneratorLock sync.Mutex
	entityIdCounter EntityId

	entities map[EntityId]struct{}
	stores   map[reflect.Type]*componentStore
}

func NewEcs() *Ecs {
	return &Ecs{
		entities: make(map[EntityId]struct{}),
		stores:   make(map[reflect.Type]*componentStore),
	}
}

func (ecs *Ecs) nextEntityId() EntityId {
	ecs.idGeneratorLock.Lock()
	defer ecs.idGeneratorLock.Unlock()

	id := ecs.entityIdCounter
	ecs.entityIdCounter += 1
	return id
}

func (ecs *Ecs) addEntity(components ...any) EntityId {
	return ecs.insertEntity(ecs.nextEntityId(), components...)
}

func (ecs *Ecs) insertEntity(entityId EntityId, components ...any) EntityId {
	ecs.entities[entityId] = struct{}{}
	ecs.addComponents(entityId, components...)
	return entityId
}

func (ecs *Ecs) hasEntity(entityId EntityId) bool {
	_, ok := ecs.entities[entityId]
	return ok
}

func (ecs *Ecs) removeEntity(entityId EntityId) {
	if !ecs.hasEntity(entityId) {
		return
	}
	for _, store := range ecs.stores {
		store.remove(entityId)
	}
	delete(ecs.entities, entityId)
}

// addComponents overwrites components of a type the entity already has.
// Components added to a removed entity are dropped.
func (ecs *Ecs) addComponents(entityId EntityId, components ...any) {
	if !ecs.hasEntity(entityId) {
		return
	}
	for _, component := range components {
		t, v := componentValue(component)
		ecs.storeFor(t).set(entityId, v)
	}
}

func (ecs *Ecs) removeComponents(entityId EntityId, components ...any) {
	for _, component := range components {
		t := componentType(component)
		if store, ok := ecs.stores[t]; ok {
			store.remove(entityId)
		}
	}
}

func (ecs *Ecs) storeFor(t reflect.Type) *componentStore {
	store, ok := ecs.stores[t]
	if !ok {
		store = newComponentStore(t)
		ecs.stores[t] = store
	}
	return store
}

// entitiesWith returns the entities owning every given type, in the storage
// order of the rarest one.
func (ecs *Ecs) entitiesWith(types ...reflect.Type) []EntityId {
	var smallest *componentStore
	for _, t := range types {
		store, ok := ecs.stores[t]
		if !ok {
			return nil
		}
		if smallest == nil || len(store.owners) < len(smallest.owners) {
			smallest = store
		}
	}
	if smallest == nil {
		return nil
	}

	res := make([]EntityId, 0, len(smallest.owners))
	for _, eid := range smallest.owners {
		has := true
		for _, t := range types {
			if _, ok := ecs.stores[t].rows[eid]; !ok {
				has = false
				break
			}
		}
		if has {
			res = append(res, eid)
		}
	}
	return res
}

// Entities returns all live entity ids in ascending order.
func (ecs *Ecs) Entities() []EntityId {
	res := make([]EntityId, 0, len(ecs.entities))
	for eid := range ecs.entities {
		res = append(res, eid)
	}
	slices.Sort(res)
	return res
}

func componentType(component any) reflect.Type {
	t := reflect.TypeOf(component)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		panic(fmt.Errorf("expected Component to be a struct or a pointer to a struct, got %v", t))
	}
	return t
}

func componentValue(component any) (reflect.Type, reflect.Value) {
	t := componentType(component)
	v := reflect.ValueOf(component)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			panic(fmt.Errorf("nil %v component", t))
		}
		v = v.Elem()
	}
	return t, v
}
