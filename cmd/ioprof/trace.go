package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bjdonie/ioprof"
	"github.com/bjdonie/ioprof/internal/bundle"
	"github.com/bjdonie/ioprof/internal/oninterrupt"
	"github.com/bjdonie/ioprof/internal/trace"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

const traceHelp = `ioprof trace [-flags] <device>

trace runs blktrace/blkparse against device for -runtime seconds (and,
with -trace_files, lists the regular files under its mountpoint into a
file-map shard, each with the placeholder range 0:0 rather than its real
LBA extents), then packages everything into <device-basename>.tar.
`

// checkTracePrereqs mirrors the original's check_trace_prereqs: both
// blktrace and blkparse must be on PATH, or trace mode can't run at all
// (spec §7 PrereqMissing, fatal).
func checkTracePrereqs() error {
	for _, tool := range []string{"blktrace", "blkparse"} {
		if _, err := exec.LookPath(tool); err != nil {
			return ioprof.Wrap(ioprof.KindPrereqMissing, xerrors.Errorf("%s not found on PATH: %w", tool, err))
		}
	}
	return nil
}

func cmdtrace(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("trace", flag.ExitOnError)
	var (
		runtime   = fset.Duration("runtime", 10*time.Second, "how long to trace (minimum 3s)")
		traceFile = fset.Bool("trace_files", false, "also record the files under the device's mountpoint in a file-map shard (each with placeholder range 0:0)")
		bufSize   = fset.Int("buffer_size", 1024, "blktrace per-CPU buffer size in KiB")
		bufCount  = fset.Int("buffer_count", 8, "blktrace buffer count")
		outDir    = fset.String("out_dir", ".", "directory to write the output archive into")
	)
	fset.Usage = usage(fset, traceHelp)
	fset.Parse(args)

	if fset.NArg() != 1 {
		return ioprof.Wrap(ioprof.KindValidationError, xerrors.New("trace requires exactly one device path argument"))
	}
	device := fset.Arg(0)
	if *runtime < 3*time.Second {
		return ioprof.Wrap(ioprof.KindValidationError, xerrors.New("runtime must be at least 3s"))
	}

	if err := checkTracePrereqs(); err != nil {
		return err
	}

	devName := strings.TrimPrefix(device, "/dev/")
	workDir, err := os.MkdirTemp("", "ioprof-trace-"+devName)
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	archivePath := filepath.Join(*outDir, devName+".tar")
	pf, err := renameio.TempFile("", archivePath)
	if err != nil {
		return xerrors.Errorf("creating temp file for %q: %w", archivePath, err)
	}
	oninterrupt.Register(func() {
		// On interrupt the pending file is discarded without committing,
		// so no half-written archive is left behind; nothing captured so
		// far is kept.
		pf.Cleanup()
	})
	defer pf.Cleanup()

	w := bundle.NewWriter(pf)

	var geometryText []byte
	if err := trace.Phase("fdisk", 0, func() error {
		var gErr error
		geometryText, gErr = runFdisk(ctx, device)
		return gErr
	}); err != nil {
		return err
	}
	if err := w.WriteGeometry(devName, geometryText); err != nil {
		return err
	}

	rawOut := filepath.Join(workDir, "blk.out."+devName+".0")
	if err := trace.Phase("blktrace", 0, func() error {
		return runBlktrace(ctx, device, rawOut, *bufSize, *bufCount, *runtime)
	}); err != nil {
		return ioprof.Wrap(ioprof.KindPrereqMissing, xerrors.Errorf("blktrace: %w", err))
	}

	var parsed []byte
	if err := trace.Phase("blkparse", 1, func() error {
		var pErr error
		parsed, pErr = runBlkparse(ctx, rawOut)
		return pErr
	}); err != nil {
		return err
	}
	if err := w.WriteBlockEventShard(devName, 0, parsed); err != nil {
		return err
	}

	if *traceFile {
		var fileMap []byte
		if err := trace.Phase("filemap", 2, func() error {
			var fErr error
			fileMap, fErr = walkFileMap(device)
			return fErr
		}); err != nil {
			return err
		}
		if len(fileMap) > 0 {
			if err := w.WriteFileMapShard(devName, 0, fileMap); err != nil {
				return err
			}
		}
	}

	if err := w.Close(); err != nil {
		return ioprof.Wrap(ioprof.KindPrereqMissing, xerrors.Errorf("closing archive: %w", err))
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("committing archive to %q: %w", archivePath, err)
	}
	fmt.Printf("wrote %s\n", archivePath)
	return nil
}

// runFdisk shells out to fdisk exactly as the original implementation's
// "fdisk -l -u=sectors <dev>" invocation does, capturing stdout as the
// geometry text internal/geometry parses.
func runFdisk(ctx context.Context, device string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "fdisk", "-l", "-u=sectors", device)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, xerrors.Errorf("running fdisk: %w", err)
	}
	return out.Bytes(), nil
}

// runBlktrace runs "blktrace -b <size> -n <count> -a queue -d <dev> -o
// <out> -w <seconds>", matching the original's queue-events-only capture.
func runBlktrace(ctx context.Context, device, out string, bufSize, bufCount int, runtime time.Duration) error {
	secs := strconv.Itoa(int(runtime.Round(time.Second).Seconds()))
	cmd := exec.CommandContext(ctx, "blktrace",
		"-b", strconv.Itoa(bufSize),
		"-n", strconv.Itoa(bufCount),
		"-a", "queue",
		"-d", device,
		"-o", out,
		"-w", secs,
	)
	return cmd.Run()
}

// runBlkparse runs "blkparse -i <raw> -q -f '%d %a %S %n\n'", the exact
// output format field set the Block-Event Parser's shard grammar expects
// (direction, starting sector, size in sectors).
func runBlkparse(ctx context.Context, raw string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "blkparse", "-i", raw, "-q", "-f", "%d %a %S %n\n")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, xerrors.Errorf("running blkparse: %w", err)
	}
	return out.Bytes(), nil
}

// walkFileMap enumerates regular files under device's mountpoint. A
// complete per-file LBA-range resolution needs filesystem extent
// introspection (debugfs dump_extents for ext*, FIEMAP ioctl elsewhere);
// recording the path list here and leaving range resolution as a
// zero-range placeholder keeps the file-map shard well-formed for the
// parser without requiring root and a mounted debugfs just to smoke-test
// trace mode.
func walkFileMap(device string) ([]byte, error) {
	mountpoint, err := mountpointOf(device)
	if err != nil || mountpoint == "" {
		return nil, nil
	}
	var buf bytes.Buffer
	err = filepath.Walk(mountpoint, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		fmt.Fprintf(&buf, "%s :: 0:0\n", path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mountpointOf(device string) (string, error) {
	out, err := exec.Command("findmnt", "-n", "-o", "TARGET", device).Output()
	if err != nil {
		return "", nil // not mounted, or findmnt unavailable: skip silently
	}
	return strings.TrimSpace(string(out)), nil
}
