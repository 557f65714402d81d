// Command export streams a split-raw or EWF-style image through
// ExportEngine into a plain destination file, verifying its recorded
// integrity digest along the way.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sleuthkit/goewfacquire/internal/digest"
	"github.com/sleuthkit/goewfacquire/internal/engine"
	"github.com/sleuthkit/goewfacquire/internal/ewfhandle"
	"github.com/sleuthkit/goewfacquire/internal/rawimage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "raw", "source format: raw or ewf")
	output := fs.String("output", "", "destination path (required)")
	sectorSize := fs.Uint("sector-size", 512, "bytes per sector (raw source only)")
	chunkSectors := fs.Uint("chunk-sectors", ewfhandle.DefaultChunkSectors, "sectors per chunk (raw source only)")
	hashList := fs.String("hash", "md5,sha1", "comma-separated digests to recompute and verify: md5,sha1,sha256")
	logical := fs.Bool("logical", false, "walk the source's logical-evidence tree and export individual files into --output instead of a physical byte-for-byte copy (ewf format only)")
	fs.Parse(args)

	if *output == "" || fs.NArg() != 1 {
		return fmt.Errorf("usage: export --output PATH [flags] SOURCE")
	}
	sourcePath := fs.Arg(0)

	if *logical {
		if *format != "ewf" {
			return fmt.Errorf("--logical is only supported for --format=ewf")
		}
		return runLogicalExport(sourcePath, *output)
	}

	dest, err := os.Create(*output)
	if err != nil {
		return err
	}
	defer dest.Close()

	opts, err := parseHashList(*hashList)
	if err != nil {
		return err
	}

	var src engine.Capability
	var chunkSize, totalChunks int
	recorded := make(map[string]string)

	switch *format {
	case "raw":
		h := rawimage.New()
		if err := h.Open([]string{sourcePath}, rawimage.AccessRead); err != nil {
			return err
		}
		chunkSize = int(*chunkSectors) * int(*sectorSize)
		totalChunks = int((h.MediaSize() + uint64(chunkSize) - 1) / uint64(chunkSize))
		src = rawimage.NewCapability(h, chunkSize)
		for i := 0; i < h.IntegrityHashValues().Count(); i++ {
			id, _ := h.IntegrityHashValues().IdentifierAt(i)
			v, _ := h.IntegrityHashValues().Get(id)
			recorded[id] = v.StringValue()
		}
	case "ewf":
		h, err := ewfhandle.Open(sourcePath)
		if err != nil {
			return err
		}
		chunkSize = int(h.BytesPerSector()) * ewfhandle.DefaultChunkSectors
		totalChunks = h.ChunkCount()
		src = h
		for _, id := range []string{"MD5", "SHA1", "SHA256"} {
			if v, ok := h.DigestValue(id); ok {
				recorded[id] = v
			}
		}
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	eng := engine.NewExportEngine(src, dest, chunkSize, totalChunks, opts, os.Stderr)
	results, err := eng.Run()
	if err != nil {
		return err
	}

	mismatches := engine.VerifyDigest(recorded, results)
	if len(mismatches) > 0 {
		return fmt.Errorf("integrity check failed for: %v", mismatches)
	}
	fmt.Println("export complete, integrity verified")
	return nil
}

// runLogicalExport opens an EWF container carrying a logical-evidence
// tree (written by acquire --logical-source) and copies each named
// entry out into destDir, rather than exporting the physical byte
// stream.
func runLogicalExport(sourcePath, destDir string) error {
	h, err := ewfhandle.Open(sourcePath)
	if err != nil {
		return err
	}
	defer h.Close()
	return engine.ExportLogicalEvidence(h, destDir, os.Stderr)
}

func parseHashList(s string) (digest.Options, error) {
	var opts digest.Options
	if s == "" {
		return opts, nil
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				switch s[start:i] {
				case "md5":
					opts.MD5 = true
				case "sha1":
					opts.SHA1 = true
				case "sha256":
					opts.SHA256 = true
				default:
					return opts, fmt.Errorf("unknown digest %q", s[start:i])
				}
			}
			start = i + 1
		}
	}
	return opts, nil
}
