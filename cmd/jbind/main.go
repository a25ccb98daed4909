// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

// Program jbind decodes a stream of JSON values and prints each one as
// compact JSON text, one per line.
//
// Usage:
//
//	jbind [flags] [file ...]
//
// With no files, or with a file named "-", input is read from stdin. Files
// named with a .gz or .zst suffix are decompressed.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/creachadair/jbind/ast"
	"github.com/creachadair/jbind/decoder"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/tailscale/hujson"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type settings struct {
	configPath string
	maxDepth   int
	strict     bool
	hujson     bool
	verbose    bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jbind", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var s settings
	fs.StringVar(&s.configPath, "config", "", "Path of a YAML decoder configuration")
	fs.IntVar(&s.maxDepth, "max-depth", 0, "Maximum nesting depth (overrides config)")
	fs.BoolVar(&s.strict, "strict", false, "Report mismatched values as errors (overrides config)")
	fs.BoolVar(&s.hujson, "hujson", false, "Accept JSON with comments and trailing commas")
	fs.BoolVar(&s.verbose, "v", false, "Log discarded input to stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: jbind [flags] [file ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); errors.Is(err, flag.ErrHelp) {
		return 0
	} else if err != nil {
		return 2
	}

	opts, err := s.options(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if s.verbose {
		opts = append(opts, decoder.WithLogger(stderrLogger{stderr}))
	}

	files := fs.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}
	code := 0
	for _, name := range files {
		if err := s.decodeFile(ctx, name, stdin, stdout, opts); err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", name, err)
			code = 1
			if ctx.Err() != nil {
				break
			}
		}
	}
	return code
}

// options assembles decoder options from the configuration file, if any,
// followed by flags set explicitly on the command line.
func (s *settings) options(fs *flag.FlagSet) ([]decoder.Option, error) {
	var opts []decoder.Option
	if s.configPath != "" {
		f, err := os.Open(s.configPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		cfg, err := decoder.LoadConfig(f)
		if err != nil {
			return nil, err
		}
		opts, err = cfg.Options()
		if err != nil {
			return nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-depth":
			opts = append(opts, decoder.WithMaxDepth(s.maxDepth))
		case "strict":
			opts = append(opts, decoder.WithStrict(s.strict))
		}
	})
	return opts, nil
}

func (s *settings) decodeFile(ctx context.Context, name string, stdin io.Reader, stdout io.Writer, opts []decoder.Option) error {
	rc, err := openInput(name, stdin)
	if err != nil {
		return err
	}
	defer rc.Close()

	var input io.Reader = rc
	if s.hujson {
		data, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		std, err := hujson.Standardize(data)
		if err != nil {
			return err
		}
		input = bytes.NewReader(std)
	}

	rd := decoder.NewReader(input, opts...)
	for {
		var v ast.Value
		if err := rd.Decode(ctx, &v); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(stdout, v.JSON()); err != nil {
			return err
		}
	}
}

// openInput opens the named input, decompressing it if its name has a
// recognized suffix. The name "-" denotes stdin.
func openInput(name string, stdin io.Reader) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(name) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return readCloser{zr, func() error { zr.Close(); return f.Close() }}, nil
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return readCloser{zr, func() error { zr.Close(); return f.Close() }}, nil
	}
	return f, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

type stderrLogger struct{ w io.Writer }

func (s stderrLogger) Printf(msg string, args ...any) { fmt.Fprintf(s.w, msg+"\n", args...) }
