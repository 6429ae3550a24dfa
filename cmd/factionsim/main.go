// Command factionsim serves a faction policy directory driven by a
// diplomacy simulation.
package main

func main() {
	Execute()
}
