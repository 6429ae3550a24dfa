package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/talgya/factions/internal/engine"
	"github.com/talgya/factions/internal/policy"
	"github.com/talgya/factions/internal/social"
)

var (
	inspectFaction string
	inspectJSON    bool
	inspectEvents  int
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFaction, "faction", "", "Show one faction's policies and relations")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Dump every stored policy value as JSON")
	inspectCmd.Flags().IntVar(&inspectEvents, "events", 10, "Number of stored events to show")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the saved world without running it",
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	w, err := openWorld()
	if err != nil {
		return err
	}
	defer w.close()

	out := cmd.OutOrStdout()
	dir := w.sim.Dir

	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(exportJSON(dir.Export()))
	}
	if inspectFaction != "" {
		return printFaction(cmd, dir, inspectFaction)
	}

	st := w.sim.Status()
	fmt.Fprintf(out, "%s: %d factions, %d wars, %d treaties\n", engine.SimTime(w.tick), st.Factions, st.Wars, st.Treaties)
	fmt.Fprintf(out, "slots: %d internal, %d one-way, %d two-way across %d types\n\n",
		st.Policies.Internal, st.Policies.OneWay, st.Policies.TwoWay, st.Policies.Types)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FACTION\tKIND\tSTANDING")
	for _, name := range dir.ListFactions() {
		kind := "-"
		if p, ok := w.profiles.Lookup(name); ok {
			kind = p.Kind.String()
		}
		standing := "-"
		if s, err := policy.GetAs[*social.Standing](dir, social.TypeStanding, name); err == nil {
			standing = fmt.Sprintf("%d", s.Value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, kind, standing)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if inspectEvents <= 0 {
		return nil
	}
	events, err := w.db.RecentEvents(inspectEvents)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nrecent events (%d):\n", len(events))
	for _, e := range events {
		fmt.Fprintf(out, "  [%s] %-9s %s\n", engine.SimTime(e.Tick), e.Category, e.Description)
	}
	return nil
}

func printFaction(cmd *cobra.Command, dir *policy.Directory, name string) error {
	if !dir.HasFaction(name) {
		return fmt.Errorf("faction %q: %w", name, policy.ErrUnknownFaction)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", name)

	reg := dir.Registry()
	for _, d := range reg.Descriptors() {
		if d.Kind != policy.Internal {
			continue
		}
		v, err := dir.GetInternal(d.ID, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %-12s %s\n", d.ID, compact(v))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nTOWARD\tPOLICY\tVALUE")
	for _, other := range dir.ListFactions() {
		if other == name {
			continue
		}
		for _, d := range reg.Descriptors() {
			var (
				v   policy.Value
				err error
			)
			switch d.Kind {
			case policy.OneWay:
				v, err = dir.GetOneWay(d.ID, name, other)
			case policy.TwoWay:
				v, err = dir.GetTwoWay(d.ID, name, other)
			default:
				continue
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", other, d.ID, compact(v))
		}
	}
	return tw.Flush()
}

type jsonEntry struct {
	Type     policy.TypeID `json:"type"`
	Kind     string        `json:"kind"`
	Factions []string      `json:"factions"`
	Value    policy.Value  `json:"value"`
}

func exportJSON(snap policy.Snapshot) map[string]any {
	entries := make([]jsonEntry, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		factions := []string{e.First}
		if e.Kind != policy.Internal {
			factions = append(factions, e.Second)
		}
		entries = append(entries, jsonEntry{Type: e.Type, Kind: e.Kind.String(), Factions: factions, Value: e.Value})
	}
	return map[string]any{
		"factions": snap.Factions,
		"entries":  entries,
	}
}

func compact(v policy.Value) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
