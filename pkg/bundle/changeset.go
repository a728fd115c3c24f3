package bundle

import (
	"fmt"
	"sort"
)

// Operation is one step of a bundle change set: a single controller call,
// possibly depending on the results of earlier operations ($-prefixed
// placeholders in Args refer to the operation they name).
type Operation struct {
	ID       string   `json:"Id"`
	Method   string   `json:"Method"`
	Args     []any    `json:"Args"`
	Requires []string `json:"Requires"`
}

// ChangeSet computes the ordered list of operations required to deploy the
// bundle on an empty environment: charms are fetched first, then services
// deployed, machines provisioned, relations established and units placed.
// The result is deterministic for a given bundle.
func ChangeSet(b *Bundle) []Operation {
	var ops []Operation
	next := 0
	add := func(method string, args []any, requires ...string) string {
		id := fmt.Sprintf("%s-%d", method, next)
		next++
		if requires == nil {
			requires = []string{}
		}
		ops = append(ops, Operation{
			ID:       id,
			Method:   method,
			Args:     args,
			Requires: requires,
		})
		return id
	}

	charmIDs := make(map[string]string)
	deployIDs := make(map[string]string)
	for _, name := range b.ServiceNames() {
		svc := b.Services[name]
		charmID, ok := charmIDs[svc.Charm]
		if !ok {
			charmID = add("addCharm", []any{svc.Charm, b.Series})
			charmIDs[svc.Charm] = charmID
		}
		options := svc.Options
		if options == nil {
			options = map[string]any{}
		}
		deployIDs[name] = add(
			"deploy", []any{"$" + charmID, name, options}, charmID)
	}

	machineNames := make([]string, 0, len(b.Machines))
	for name := range b.Machines {
		machineNames = append(machineNames, name)
	}
	sort.Strings(machineNames)
	for _, name := range machineNames {
		machine := b.Machines[name]
		add("addMachines", []any{map[string]any{
			"series":      machine.Series,
			"constraints": machine.Constraints,
		}})
	}

	for _, relation := range b.Relations {
		if len(relation) != 2 {
			continue
		}
		first := deployIDs[endpointService(relation[0])]
		second := deployIDs[endpointService(relation[1])]
		add("addRelation",
			[]any{"$" + first, "$" + second}, first, second)
	}

	for _, name := range b.ServiceNames() {
		svc := b.Services[name]
		deployID := deployIDs[name]
		for i := 0; i < svc.NumUnits; i++ {
			add("addUnit", []any{"$" + deployID, nil}, deployID)
		}
	}
	return ops
}

// ParseChangeSet validates YAML bundle content and computes its change set.
// Validation problems are reported in the second return value; the change
// set is only meaningful when that list is empty.
func ParseChangeSet(content string) ([]Operation, []string) {
	b, err := Decode(content)
	if err != nil {
		return nil, []string{"the provided bundle is not a valid YAML"}
	}
	if errors := Validate(b); len(errors) != 0 {
		return nil, errors
	}
	return ChangeSet(b), nil
}
