package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rodaine/table"
	"github.com/sirupsen/logrus"

	"url-analyzer/internal/analyzer"
	"url-analyzer/internal/config"
)

func main() {
	cfg, parser, err := config.ParseCLI(os.Args[1:])
	if err != nil {
		if parser != nil {
			parser.FatalIfErrorf(err)
		}
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log configuration")
	}

	svc, err := analyzer.NewAnalyzer(cfg.Analyzer.Options(analyzer.LogObserver{Log: logger}))
	if err != nil {
		logger.WithError(err).Fatal("Invalid analyzer configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := false
	for _, target := range cfg.URLs {
		report, err := analyze(ctx, svc, cfg, target)
		if err != nil {
			logger.WithError(err).WithField("url", target).Error("Analysis failed")
			failed = true
			continue
		}
		if cfg.JSON {
			err = printJSON(os.Stdout, report)
		} else {
			printTable(os.Stdout, report)
		}
		if err != nil {
			logger.WithError(err).Error("Writing report failed")
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func analyze(ctx context.Context, svc analyzer.Service, cfg *config.CLI, target string) (*analyzer.Report, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	return svc.Analyze(ctx, analyzer.Request{URL: target})
}

func printJSON(w io.Writer, report *analyzer.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printTable(w io.Writer, r *analyzer.Report) {
	tbl := table.New("Metric", "Value").WithWriter(w)
	tbl.AddRow("URL", r.URL)
	tbl.AddRow("Reachable", r.Reachable)
	tbl.AddRow("Status", fmt.Sprintf("%d %s", r.StatusCode, r.StatusText))
	if r.Reachable {
		tbl.AddRow("Title", r.Title)
		tbl.AddRow("HTML version", r.HTMLVersion)
		for _, tag := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
			tbl.AddRow("Headings "+tag, r.Headings[tag])
		}
		tbl.AddRow("Total links", r.Links.Total)
		tbl.AddRow("Internal links", r.Links.Internal)
		tbl.AddRow("External links", r.Links.External)
		tbl.AddRow("Inaccessible links", r.Links.Inaccessible)
		tbl.AddRow("Login form", r.HasLoginForm)
	}
	tbl.Print()
	fmt.Fprintln(w)
}
