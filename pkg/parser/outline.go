package parser

const (
	MiscModuleID    = "misc_module_top_level_items"
	MiscModuleTitle = "Misc Module"
)

// OutlineModule is a module-level grouping of organization items
type OutlineModule struct {
	Identifier string
	Title      string
	Items      []*OrganizationItem
	Synthetic  bool // the catch-all module for loose top level items
}

// Outline groups the organization roots into modules. Container roots become
// modules of their own; roots pointing straight at a resource are collected,
// in document order, into one synthetic misc module that is placed where the
// first of them appears.
func (m *Manifest) Outline() []*OutlineModule {
	var modules []*OutlineModule
	var misc *OutlineModule

	for _, root := range m.Organizations {
		if root.IsContainer() {
			modules = append(modules, &OutlineModule{
				Identifier: root.Identifier,
				Title:      root.Title,
				Items:      root.Children,
			})
			continue
		}

		if misc == nil {
			misc = &OutlineModule{
				Identifier: MiscModuleID,
				Title:      MiscModuleTitle,
				Synthetic:  true,
			}
			modules = append(modules, misc)
		}
		misc.Items = append(misc.Items, root)
	}
	return modules
}
