package controller

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stevedore-dev/stevedore/pkg/bundle"
)

// ValidateBundle fails when any service declared by the bundle collides
// with a service already deployed in the environment. It connects its own
// short-lived authenticated client and always closes it.
func ValidateBundle(ctx context.Context, apiURL, password, _ string, b *bundle.Bundle) error {
	client, err := Dial(ctx, apiURL)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Login(password); err != nil {
		return err
	}
	return checkCollisions(client, b)
}

// ImportBundle validates the bundle against the live environment and then
// executes it: every service is deployed and every relation established.
// The call blocks for the whole deployment; errors end it immediately.
func ImportBundle(ctx context.Context, apiURL, password, name string, b *bundle.Bundle) error {
	client, err := Dial(ctx, apiURL)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Login(password); err != nil {
		return err
	}
	if err := checkCollisions(client, b); err != nil {
		return err
	}
	for _, serviceName := range b.ServiceNames() {
		svc := b.Services[serviceName]
		err := client.Deploy(serviceName, svc.Charm, svc.NumUnits, svc.Options)
		if err != nil {
			return fmt.Errorf("deploy %s: %w", serviceName, err)
		}
	}
	for _, relation := range b.Relations {
		if len(relation) != 2 {
			continue
		}
		if err := client.AddRelation(relation[0], relation[1]); err != nil {
			return fmt.Errorf("relate %s %s: %w", relation[0], relation[1], err)
		}
	}
	return nil
}

func checkCollisions(client *Client, b *bundle.Bundle) error {
	deployed, err := client.ServiceNames()
	if err != nil {
		return err
	}
	var overlapping []string
	for _, name := range deployed {
		if _, ok := b.Services[name]; ok {
			overlapping = append(overlapping, name)
		}
	}
	if len(overlapping) != 0 {
		sort.Strings(overlapping)
		return fmt.Errorf("service(s) already in the environment: %s",
			strings.Join(overlapping, ", "))
	}
	return nil
}
