// Command vmsim boots a simulated machine and runs a demand-paging workload on
// its virtual memory system.
package main

import "github.com/sarchlab/demandvm/cmd/vmsim/cmd"

func main() {
	cmd.Execute()
}
