package jsonbind

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/reoring/jsonbind/types"
)

// aliasTable maps discriminator strings to types and back. Types registered
// without an alias are known by their qualified name.
type aliasTable struct {
	byAlias map[string]reflect.Type
	byType  map[reflect.Type]string
	byName  map[string]reflect.Type
}

func newAliasTable() *aliasTable {
	return &aliasTable{
		byAlias: map[string]reflect.Type{},
		byType:  map[reflect.Type]string{},
		byName:  map[string]reflect.Type{},
	}
}

func (a *aliasTable) clone() *aliasTable {
	return &aliasTable{
		byAlias: maps.Clone(a.byAlias),
		byType:  maps.Clone(a.byType),
		byName:  maps.Clone(a.byName),
	}
}

func (a *aliasTable) register(rt reflect.Type) {
	a.byName[types.Of(rt).Qualified()] = rt
}

func (a *aliasTable) alias(alias string, rt reflect.Type) error {
	if prev, ok := a.byAlias[alias]; ok && prev != rt {
		return fmt.Errorf("alias %q already bound to %s", alias, prev)
	}
	if prev, ok := a.byType[rt]; ok && prev != alias {
		return fmt.Errorf("type %s already aliased as %q", rt, prev)
	}
	a.byAlias[alias] = rt
	a.byType[rt] = alias
	a.register(rt)
	return nil
}

// aliasOf is the discriminator written for rt.
func (a *aliasTable) aliasOf(rt reflect.Type) string {
	if s, ok := a.byType[rt]; ok {
		return s
	}
	return types.Of(rt).Qualified()
}

// lookup resolves a discriminator: aliases first, then qualified names.
func (a *aliasTable) lookup(s string) (reflect.Type, bool) {
	if rt, ok := a.byAlias[s]; ok {
		return rt, true
	}
	rt, ok := a.byName[s]
	return rt, ok
}
