//go:build property
// +build property

package routes

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func propertyTable(t *testing.T) *Table {
	return surface(t, func(ctx context.Context) (View, error) { return textView("train"), nil })
}

// TestRouteResolutionProperties checks matching invariants over generated paths.
func TestRouteResolutionProperties(t *testing.T) {
	table := propertyTable(t)
	properties := gopter.NewProperties(nil)

	// Property: any non-empty id reaches EditPack and is forwarded unchanged
	properties.Property("editpack forwards id", prop.ForAll(
		func(id string) bool {
			m, err := table.Resolve("/editpack/" + id)
			if err != nil {
				return false
			}
			return m.Entry.Page.ID == editPack && m.Props["id"] == id && m.Params["id"] == id
		},
		gen.RegexMatch(`^[a-zA-Z0-9_-]{1,24}$`),
	))

	// Property: train never forwards props, whatever the id
	properties.Property("train keeps props empty", prop.ForAll(
		func(id string) bool {
			m, err := table.Resolve("/train/" + id)
			return err == nil && m.Entry.Page.ID == train && len(m.Props) == 0 && m.Params["id"] == id
		},
		gen.RegexMatch(`^[a-zA-Z0-9_-]{1,24}$`),
	))

	// Property: unknown top-level segments never match
	properties.Property("unknown segments do not match", prop.ForAll(
		func(head string) bool {
			switch head {
			case "editpack", "train", "stats":
				return true
			}
			_, err := table.Resolve("/" + head)
			return err != nil
		},
		gen.RegexMatch(`^[a-z]{1,12}$`),
	))

	// Property: Href and Resolve round-trip for the named route
	properties.Property("href round trip", prop.ForAll(
		func(id string) bool {
			path, err := table.Href("Train", map[string]string{"id": id})
			if err != nil {
				return false
			}
			m, err := table.Resolve(path)
			return err == nil && m.Params["id"] == id
		},
		gen.AnyString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}
