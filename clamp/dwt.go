// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clamp

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDWT exports one (variableSetIndex, r, c) event-chain file in the
// .dwt format (§6): for each chain of K events,
//
//	Segment: <s> Dwells: <K-1> Sampling(ms): 1\r\n
//	<state>\t<duration_ms>\r\n   x K
//	\r\n
//
// <s> is the 1-based segment index; durations are multiplied by 1000.
func WriteDWT(w io.Writer, chains []MonteCarloEventChain) error {
	bw := bufio.NewWriter(w)
	for i, chain := range chains {
		if _, err := fmt.Fprintf(bw, "Segment: %d Dwells: %d Sampling(ms): 1\r\n", i+1, len(chain)-1); err != nil {
			return err
		}
		for _, ev := range chain {
			if _, err := fmt.Fprintf(bw, "%d\t%g\r\n", ev.State, ev.Duration*1000); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
