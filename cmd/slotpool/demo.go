package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/logger"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

type demoItem struct {
	ID    int
	Label string
}

func newDemoCmd() *cobra.Command {
	var pageLen, count int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Hold guarded values across a page boundary",
		Long: `Allocate more guarded values than fit in one page, print the page
count and the values, then release them and close the pool.

Example:
  slotpool demo --page-len 4 --count 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, pageLen, count)
		},
	}
	cmd.Flags().IntVar(&pageLen, "page-len", 4, "Slots per page")
	cmd.Flags().IntVar(&count, "count", 5, "Number of guarded values to hold")
	return cmd
}

func runDemo(cmd *cobra.Command, pageLen, count int) error {
	out := cmd.OutOrStdout()
	log := logger.Get().Named("demo")

	destroyed := 0
	p := pool.NewWithCapacity(pageLen,
		pool.WithName[demoItem]("demo"),
		pool.WithLogger[demoItem](log),
		pool.WithDestructor(func(*demoItem) { destroyed++ }),
	)

	guards := make([]*pool.Guard[demoItem], 0, count)
	for i := 1; i <= count; i++ {
		guards = append(guards, p.AllocGuard(demoItem{ID: i, Label: fmt.Sprintf("item-%d", i)}))
	}

	st := p.Stats()
	fmt.Fprintf(out, "page_len=%d values=%d pages=%d\n", st.PageLen, st.Live, st.Pages)
	for _, g := range guards {
		v := g.Load()
		fmt.Fprintf(out, "  page %d handle %d: %d %s\n", p.PageOf(g.Handle()), g.Handle(), v.ID, v.Label)
	}

	// Release newest first.
	for i := len(guards) - 1; i >= 0; i-- {
		guards[i].Release()
	}
	if err := p.Verify(); err != nil {
		return err
	}
	if err := p.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "released=%d\n", destroyed)
	log.Debug("demo finished", zap.Int("destroyed", destroyed))
	return nil
}
