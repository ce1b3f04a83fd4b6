package main

import (
	"context"
	"fmt"

	"github.com/elimuhq/darasa/core/badge"
)

func (cli *commandLine) addBadge(nb badge.NewBadge) error {
	ctx := context.Background()

	if err := nb.Validate(cli.validate, cli.bdgSvc); err != nil {
		return err
	}
	b, err := cli.bdgSvc.Create(ctx, nb)
	if err != nil {
		return err
	}
	fmt.Printf("badge %q created: %s\n", b.Name, b.ID)
	return nil
}
