package bundle

import (
	"testing"
)

func TestChangeSetOrdering(t *testing.T) {
	b, err := Decode(v4YAML)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	ops := ChangeSet(b)

	// Per service: addCharm then deploy, in lexical service order. Then
	// machines, relations and finally one addUnit per unit.
	wantMethods := []string{
		"addCharm", "deploy", // mysql
		"addCharm", "deploy", // wordpress
		"addMachines",
		"addRelation",
		"addUnit", "addUnit",
	}
	if len(ops) != len(wantMethods) {
		t.Fatalf("len(ops) = %d, want %d", len(ops), len(wantMethods))
	}
	for i, want := range wantMethods {
		if ops[i].Method != want {
			t.Errorf("ops[%d].Method = %q, want %q", i, ops[i].Method, want)
		}
	}
}

func TestChangeSetIDsAndPlaceholders(t *testing.T) {
	b, err := Decode(v4YAML)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	ops := ChangeSet(b)

	if ops[0].ID != "addCharm-0" || ops[1].ID != "deploy-1" {
		t.Errorf("ids = %q, %q", ops[0].ID, ops[1].ID)
	}
	// The deploy step consumes the charm added right before it.
	if ops[1].Args[0] != "$addCharm-0" || ops[1].Args[1] != "mysql" {
		t.Errorf("deploy args = %v", ops[1].Args)
	}
	if len(ops[1].Requires) != 1 || ops[1].Requires[0] != "addCharm-0" {
		t.Errorf("deploy requires = %v", ops[1].Requires)
	}

	var relation Operation
	for _, op := range ops {
		if op.Method == "addRelation" {
			relation = op
		}
	}
	// wordpress:db relates to mysql; endpoints resolve to the deploy steps.
	if relation.Args[0] != "$deploy-3" || relation.Args[1] != "$deploy-1" {
		t.Errorf("relation args = %v", relation.Args)
	}
}

func TestChangeSetSharedCharm(t *testing.T) {
	b := &Bundle{Services: map[string]Service{
		"wordpress-a": {Charm: "cs:trusty/wordpress-42"},
		"wordpress-b": {Charm: "cs:trusty/wordpress-42"},
	}}
	ops := ChangeSet(b)

	charms := 0
	for _, op := range ops {
		if op.Method == "addCharm" {
			charms++
		}
	}
	if charms != 1 {
		t.Errorf("addCharm operations = %d, want 1", charms)
	}
}

func TestChangeSetEmptyRequires(t *testing.T) {
	b := &Bundle{Services: map[string]Service{
		"wordpress": {Charm: "cs:trusty/wordpress-42"},
	}}
	ops := ChangeSet(b)
	// The JSON field must encode as [] rather than null.
	if ops[0].Requires == nil {
		t.Error("addCharm requires should be an empty slice")
	}
}

func TestParseChangeSet(t *testing.T) {
	ops, problems := ParseChangeSet(v4YAML)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	if len(ops) == 0 {
		t.Fatal("no operations computed")
	}
}

func TestParseChangeSetInvalidYAML(t *testing.T) {
	_, problems := ParseChangeSet(":")
	if len(problems) != 1 || problems[0] != "the provided bundle is not a valid YAML" {
		t.Errorf("problems = %v", problems)
	}
}

func TestParseChangeSetInvalidBundle(t *testing.T) {
	_, problems := ParseChangeSet("series: trusty\nservices: {}\n")
	if len(problems) != 1 || problems[0] != "bundle does not declare any services" {
		t.Errorf("problems = %v", problems)
	}
}
