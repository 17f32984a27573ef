package migration

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI formats Migrator operations for the "aicarousel migrate" subcommand.
type CLI struct {
	migrator Migrator
	output   io.Writer
}

func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) RunUp() error {
	fmt.Fprintln(c.output, "Running migrations...")
	if err := c.migrator.Up(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	info, err := c.migrator.Info()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Migrations complete. Current version: %d\n", info.CurrentVersion)
	return nil
}

func (c *CLI) RunDown() error {
	fmt.Fprintln(c.output, "Rolling back last migration...")
	if err := c.migrator.Down(); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	info, err := c.migrator.Info()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Rollback complete. Current version: %d\n", info.CurrentVersion)
	return nil
}

func (c *CLI) RunStatus() error {
	statuses, err := c.migrator.Status()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	fmt.Fprintln(w, "-------\t----\t------")
	for _, s := range statuses {
		status := "Pending"
		if s.Applied {
			status = "Applied"
		}
		if s.Dirty {
			status = "Dirty"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	w.Flush()

	info, err := c.migrator.Info()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.output)
	fmt.Fprintf(c.output, "Total: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func (c *CLI) RunVersion() error {
	version, dirty, err := c.migrator.Version()
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet.")
		return nil
	}
	fmt.Fprintf(c.output, "Current version: %d", version)
	if dirty {
		fmt.Fprint(c.output, " (dirty)")
	}
	fmt.Fprintln(c.output)
	return nil
}
