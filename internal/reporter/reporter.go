// Package reporter renders claim listings, change events and capacity
// notices as console lines.
package reporter

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/potooio/pvcwatch/internal/aggregator"
	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

// Reporter writes human-readable lines to an io.Writer. Write failures are
// logged and otherwise ignored.
type Reporter struct {
	logger *zap.Logger
	out    io.Writer

	// qualify prints namespace/name instead of name, for cluster-wide watches.
	qualify bool

	warning *color.Color
	info    *color.Color
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithColor forces transition lines to be colored or plain, regardless of
// whether out is a terminal.
func WithColor(enabled bool) Option {
	return func(r *Reporter) {
		if enabled {
			r.warning.EnableColor()
			r.info.EnableColor()
		} else {
			r.warning.DisableColor()
			r.info.DisableColor()
		}
	}
}

// WithNamespaces prefixes claim names with their namespace.
func WithNamespaces() Option {
	return func(r *Reporter) { r.qualify = true }
}

// New creates a Reporter writing to out.
func New(logger *zap.Logger, out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{
		logger:  logger.Named("reporter"),
		out:     out,
		warning: color.New(color.FgRed, color.Bold),
		info:    color.New(color.FgGreen),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reporter) printf(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(r.out, format, args...); err != nil {
		r.logger.Error("Failed to write report line", zap.Error(err))
	}
}

func (r *Reporter) name(c types.ClaimRecord) string {
	if r.qualify {
		return c.Namespace + "/" + c.Name
	}
	return c.Name
}

// Header prints the connection line and the watch banner.
func (r *Reporter) Header(host, namespace string, limit quantity.Quantity) {
	if namespace == "" {
		namespace = "all"
	}
	r.printf("connecting to API server %s\n", host)
	r.printf("----- PVC Watch (namespace %s, max total claims: %s) -----\n", namespace, limit)
}

// Listing prints a table of claims followed by their total.
func (r *Reporter) Listing(claims []types.ClaimRecord) {
	if len(claims) == 0 {
		r.printf("No claims found\n")
		return
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	if r.qualify {
		fmt.Fprintln(w, "NAMESPACE\tNAME\tVOLUME\tSIZE")
	} else {
		fmt.Fprintln(w, "NAME\tVOLUME\tSIZE")
	}
	total := quantity.Zero()
	for _, c := range claims {
		volume := c.Volume
		if volume == "" {
			volume = "<none>"
		}
		if r.qualify {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Namespace, c.Name, volume, c.Size)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, volume, c.Size)
		}
		total = total.Add(c.Size)
	}
	if err := w.Flush(); err != nil {
		r.logger.Error("Failed to write claim listing", zap.Error(err))
	}
	r.printf("Total capacity claimed: %s\n", total)
}

// Event prints the line describing an applied change.
func (r *Reporter) Event(res aggregator.Result) {
	c := res.Event.Claim
	switch res.Event.Type {
	case types.EventAdded:
		r.printf("ADDED: PVC %s added, size %s\n", r.name(c), c.Size)
	case types.EventModified:
		if res.Previous != nil && !res.Previous.Size.Equal(c.Size) {
			r.printf("MODIFIED: PVC %s resized, size %s -> %s\n", r.name(c), res.Previous.Size, c.Size)
			return
		}
		r.printf("MODIFIED: PVC %s\n", r.name(c))
	case types.EventDeleted:
		size := c.Size
		if res.Previous != nil {
			size = res.Previous.Size
		}
		r.printf("DELETED: PVC %s removed, size %s\n", r.name(c), size)
	}
}

// Inconsistent surfaces an event that did not match the claim table.
func (r *Reporter) Inconsistent(msg string) {
	r.printf("WARNING: %s\n", msg)
}

// Transition prints the overage or recovery notice.
func (r *Reporter) Transition(t types.Transition) {
	var line string
	c := r.info
	switch t.To {
	case types.StateOverCapacity:
		line = fmt.Sprintf("WARNING: claim overage reached: max %s, at %s", t.Limit, t.Total)
		c = r.warning
	default:
		line = fmt.Sprintf("INFO: claim usage normal: max %s, at %s", t.Limit, t.Total)
	}
	r.printf("%s\n", c.Sprint(line))
}

// Capacity prints the usage percentage.
func (r *Reporter) Capacity(total, limit quantity.Quantity) {
	r.printf("INFO: Total PVC is at %.1f%% capacity (%s/%s)\n", quantity.PercentOf(total, limit), total, limit)
}
