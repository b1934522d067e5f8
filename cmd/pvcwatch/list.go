package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/potooio/pvcwatch/internal/aggregator"
	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/reporter"
	"github.com/potooio/pvcwatch/internal/source"
	"github.com/potooio/pvcwatch/internal/types"
)

// ListResult is the result of a list command.
type ListResult struct {
	Namespace       string      `json:"namespace"`
	Claims          []ClaimInfo `json:"claims"`
	Count           int         `json:"count"`
	Total           string      `json:"total"`
	TotalBytes      int64       `json:"totalBytes"`
	Limit           string      `json:"limit"`
	LimitBytes      int64       `json:"limitBytes"`
	PercentUsed     float64     `json:"percentUsed"`
	State           string      `json:"state"`
	ResourceVersion string      `json:"resourceVersion,omitempty"`
}

// ClaimInfo represents a claim in list results.
type ClaimInfo struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Volume    string `json:"volume,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Size      string `json:"size"`
	SizeBytes int64  `json:"sizeBytes"`
}

func listCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List claims and the storage they request",
		Long: `List prints the claims in scope once, with the total storage they request
and its share of --max-claims. Use -o json or -o yaml for structured output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, o)
		},
	}
	cmd.Flags().StringVarP(&o.output, "output", "o", "table", "Output format: table, json, yaml")
	return cmd
}

func runList(cmd *cobra.Command, o *options) error {
	switch o.output {
	case "table", "json", "yaml":
	default:
		return &configError{err: fmt.Errorf("unknown output format %q, want table, json or yaml", o.output)}
	}

	cfg, err := resolveConfig(cmd, o)
	if err != nil {
		return err
	}
	logger, err := newLoggerFunc(cfg)
	if err != nil {
		return &configError{err: err}
	}
	defer func() { _ = logger.Sync() }()

	cl, err := getClientFunc(cfg.Kubeconfig)
	if err != nil {
		return types.SourceError("load kubeconfig", err)
	}
	limit, err := resolveLimit(cmd.Context(), cfg, cl, logger)
	if err != nil {
		return err
	}

	src := source.New(logger, cl.dynamic, sourceOptions(cfg))
	listing, err := src.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	engine := aggregator.NewEngine(logger, limit)
	engine.Seed(listing.Claims)

	out := cmd.OutOrStdout()
	if o.output == "table" {
		rep := reporter.New(logger, out, reporterOptions(cfg)...)
		rep.Listing(engine.Claims())
		rep.Capacity(engine.Total(), limit)
		return nil
	}

	result := buildListResult(cfg.WatchNamespace(), listing, engine)
	return outputResult(out, result, o.output)
}

func buildListResult(namespace string, listing source.Listing, engine *aggregator.Engine) ListResult {
	if namespace == "" {
		namespace = "all"
	}
	total := engine.Total()
	limit := engine.Limit()
	claims := engine.Claims()
	result := ListResult{
		Namespace:       namespace,
		Claims:          make([]ClaimInfo, 0, len(claims)),
		Count:           len(claims),
		Total:           total.String(),
		TotalBytes:      total.Bytes(),
		Limit:           limit.String(),
		LimitBytes:      limit.Bytes(),
		PercentUsed:     quantity.PercentOf(total, limit),
		State:           string(engine.State()),
		ResourceVersion: listing.ResourceVersion,
	}
	for _, c := range claims {
		result.Claims = append(result.Claims, ClaimInfo{
			Namespace: c.Namespace,
			Name:      c.Name,
			Volume:    c.Volume,
			Phase:     c.Phase,
			Size:      c.Size.String(),
			SizeBytes: c.Size.Bytes(),
		})
	}
	return result
}

// outputResult writes the result in the given structured format.
func outputResult(w io.Writer, result interface{}, format string) error {
	switch format {
	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
}

