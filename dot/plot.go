package dot

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mtreefile/mtree/btree"
	"github.com/mtreefile/mtree/mtreeerr"
)

// PlotFillFactor renders a bar chart of every page's fill percentage, in
// tree-walk order, as a PNG written to w. The teacher's own ExportDOT
// annotates each node with a "Fill: NN.N%" computed against a fixed
// 4096-byte page; here the denominator is the tree's actual key-slot
// capacity, the same figure dot.Write embeds per node.
func PlotFillFactor(t *btree.Tree, w io.Writer) error {
	cap := t.Capacity()
	if cap == 0 {
		return fmt.Errorf("dot: %w: tree has zero page capacity", mtreeerr.ErrMisuse)
	}

	var values plotter.Values
	if err := t.Walk(func(info btree.NodeInfo) error {
		values = append(values, 100*float64(len(info.Keys))/float64(cap))
		return nil
	}); err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("dot: %w: tree has no pages to plot", mtreeerr.ErrMisuse)
	}

	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("dot: %w: %v", mtreeerr.ErrIO, err)
	}
	p.Title.Text = fmt.Sprintf("%s fill factor by page", t.Kind())
	p.X.Label.Text = "page (visit order)"
	p.Y.Label.Text = "fill %"

	bars, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return fmt.Errorf("dot: %w: %v", mtreeerr.ErrIO, err)
	}
	bars.Color = color.RGBA{R: 0x45, G: 0x85, B: 0xC4, A: 0xff}
	p.Add(bars)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("dot: %w: %v", mtreeerr.ErrIO, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("dot: %w: %v", mtreeerr.ErrIO, err)
	}
	return nil
}
