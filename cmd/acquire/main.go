// Command acquire streams a source device or image through
// AcquisitionEngine into either a split-raw or EWF-style destination.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sleuthkit/goewfacquire/internal/digest"
	"github.com/sleuthkit/goewfacquire/internal/engine"
	"github.com/sleuthkit/goewfacquire/internal/ewfhandle"
	"github.com/sleuthkit/goewfacquire/internal/ltree"
	"github.com/sleuthkit/goewfacquire/internal/rawimage"
	"github.com/sleuthkit/goewfacquire/internal/sizeparse"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "acquire:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("acquire", flag.ExitOnError)
	format := fs.String("format", "raw", "destination format: raw or ewf")
	output := fs.String("output", "", "destination basename (required)")
	segSize := fs.String("segment-size", "0", "maximum segment size (e.g. 650MB, 1.4GiB, 0 for unlimited)")
	sectorSize := fs.Uint("sector-size", 512, "bytes per sector")
	chunkSectors := fs.Uint("chunk-sectors", ewfhandle.DefaultChunkSectors, "sectors per chunk")
	hashList := fs.String("hash", "md5,sha1", "comma-separated digests to compute: md5,sha1,sha256")
	compression := fs.String("compression", "fast", "ewf compression: none, fast, best")
	caseNumber := fs.String("case-number", "", "ewf case number")
	examiner := fs.String("examiner", "", "ewf examiner name")
	description := fs.String("description", "", "ewf description")
	notes := fs.String("notes", "", "ewf notes")
	resume := fs.Bool("resume", false, "resume a previously interrupted raw acquisition at --output")
	secondaryOutput := fs.String("secondary-output", "", "basename for a mirrored second destination (same format as --format)")
	logicalSource := fs.String("logical-source", "", "comma-separated file paths to acquire as a logical-evidence tree (ewf only, replaces the device source argument)")
	fs.Parse(args)

	if *output == "" {
		return fmt.Errorf("usage: acquire --output BASENAME [flags] SOURCE")
	}

	var (
		source      io.Reader
		mediaSize   uint64
		closers     []io.Closer
		logicalTree *ltree.Entry
	)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	if *logicalSource != "" {
		if *format != "ewf" {
			return fmt.Errorf("--logical-source requires --format ewf")
		}
		paths := splitComma(*logicalSource)
		if len(paths) == 0 {
			return fmt.Errorf("--logical-source: no paths given")
		}
		r, tree, size, fileClosers, err := buildLogicalSource(paths)
		if err != nil {
			return err
		}
		source, logicalTree, mediaSize, closers = r, tree, size, fileClosers
	} else {
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: acquire --output BASENAME [flags] SOURCE")
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		closers = append(closers, f)
		info, err := f.Stat()
		if err != nil {
			return err
		}
		source, mediaSize = f, uint64(info.Size())
	}

	maxSegSize, err := sizeparse.Parse(*segSize)
	if err != nil {
		return err
	}
	opts, err := parseHashList(*hashList)
	if err != nil {
		return err
	}

	chunkSize := int(*chunkSectors) * int(*sectorSize)
	sectorCount := mediaSize / uint64(*sectorSize)
	caseInfo := ewfhandle.CaseInfo{CaseNumber: *caseNumber, Description: *description, ExaminerName: *examiner, Notes: *notes}
	comp, err := parseCompression(*compression)
	if err != nil {
		return err
	}

	var aopts engine.AcquisitionOptions

	mediaType := ewfhandle.MediaTypeFixed
	if logicalTree != nil {
		mediaType = ewfhandle.MediaTypeSingleFiles
	}

	var dest engine.Capability
	if *resume {
		if *format != "raw" {
			return fmt.Errorf("--resume is only supported for --format raw")
		}
		h := rawimage.New()
		resumeOffset, err := h.OpenResume(*output)
		if err != nil {
			return err
		}
		mediaSize = h.MediaSize()
		aopts.ResumeOffset = resumeOffset
		dest = rawimage.NewCapability(h, chunkSize)
	} else {
		dest, err = buildDestination(*format, *output, mediaSize, sectorCount, chunkSize, uint32(*sectorSize), uint32(*chunkSectors), maxSegSize, comp, caseInfo, mediaType)
		if err != nil {
			return err
		}
	}

	if *secondaryOutput != "" {
		if *resume {
			return fmt.Errorf("--secondary-output cannot be combined with --resume")
		}
		sec, err := buildDestination(*format, *secondaryOutput, mediaSize, sectorCount, chunkSize, uint32(*sectorSize), uint32(*chunkSectors), maxSegSize, comp, caseInfo, mediaType)
		if err != nil {
			return err
		}
		aopts.Secondary = sec
	}

	if logicalTree != nil {
		if setter, ok := dest.(interface{ SetLogicalTree(*ltree.Entry) }); ok {
			setter.SetLogicalTree(logicalTree)
		}
		if aopts.Secondary != nil {
			if setter, ok := aopts.Secondary.(interface{ SetLogicalTree(*ltree.Entry) }); ok {
				setter.SetLogicalTree(logicalTree)
			}
		}
	}

	eng := engine.NewAcquisitionEngine(source, dest, chunkSize, mediaSize, uint32(*sectorSize), false, opts, aopts, os.Stderr)
	results, err := eng.Run()
	if err != nil {
		return err
	}
	if opts.MD5 {
		fmt.Printf("MD5: %s\n", results.MD5)
	}
	if opts.SHA1 {
		fmt.Printf("SHA1: %s\n", results.SHA1)
	}
	if opts.SHA256 {
		fmt.Printf("SHA256: %s\n", results.SHA256)
	}
	return nil
}

// buildDestination constructs a fresh engine.Capability for either
// format, shared between the primary and --secondary-output builds.
func buildDestination(format, output string, mediaSize, sectorCount uint64, chunkSize int, sectorSize, chunkSectors uint32, maxSegSize uint64, comp ewfhandle.CompressionLevel, caseInfo ewfhandle.CaseInfo, mediaType ewfhandle.MediaType) (engine.Capability, error) {
	switch format {
	case "raw":
		h := rawimage.New()
		if err := h.SetMediaSize(mediaSize); err != nil {
			return nil, err
		}
		if err := h.SetBytesPerSector(sectorSize); err != nil {
			return nil, err
		}
		if err := h.Open([]string{output}, rawimage.AccessWrite); err != nil {
			return nil, err
		}
		if maxSegSize > 0 {
			if err := h.SetMaximumSegmentSize(maxSegSize); err != nil {
				return nil, err
			}
		}
		return rawimage.NewCapability(h, chunkSize), nil
	case "ewf":
		h, err := ewfhandle.Create(output+".E01", caseInfo, mediaType, sectorCount, sectorSize, chunkSectors, comp)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// buildLogicalSource concatenates paths into a single io.Reader and
// builds the matching logical-evidence tree addressing each file's
// byte range within that concatenated stream.
func buildLogicalSource(paths []string) (io.Reader, *ltree.Entry, uint64, []io.Closer, error) {
	var readers []io.Reader
	var closers []io.Closer
	root := &ltree.Entry{IsDir: true}
	var offset uint64
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, nil, 0, closers, err
		}
		closers = append(closers, f)
		info, err := f.Stat()
		if err != nil {
			return nil, nil, 0, closers, err
		}
		size := uint64(info.Size())
		root.Children = append(root.Children, &ltree.Entry{Name: baseName(p), Offset: offset, Size: size})
		readers = append(readers, f)
		offset += size
	}
	return io.MultiReader(readers...), root, offset, closers, nil
}

func baseName(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func parseHashList(s string) (digest.Options, error) {
	var opts digest.Options
	if s == "" {
		return opts, nil
	}
	for _, part := range splitComma(s) {
		switch part {
		case "md5":
			opts.MD5 = true
		case "sha1":
			opts.SHA1 = true
		case "sha256":
			opts.SHA256 = true
		default:
			return opts, fmt.Errorf("unknown digest %q", part)
		}
	}
	return opts, nil
}

func parseCompression(s string) (ewfhandle.CompressionLevel, error) {
	switch s {
	case "none":
		return ewfhandle.CompressionNone, nil
	case "fast":
		return ewfhandle.CompressionFast, nil
	case "best":
		return ewfhandle.CompressionBest, nil
	}
	return 0, fmt.Errorf("unknown compression level %q", s)
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
