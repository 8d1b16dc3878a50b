// Command nudbctl is a small operator CLI over the nudb store: create,
// insert, fetch, and verify, mirroring the operational sequence
// original_source/benchmark/benchmark.cpp exercises against the underlying
// C++ library (create -> open -> insert -> fetch -> verify -> close).
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/seelabs/nudb"
	"github.com/seelabs/nudb/pkg/nudberr"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create":
		err = runCreate(args)
	case "insert":
		err = runInsert(args)
	case "fetch":
		err = runFetch(args)
	case "verify":
		err = runVerify(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "nudbctl: %v\n", err)
		if k := nudberr.KindOf(err); k != nudberr.Unknown {
			os.Exit(kindExitCode(k))
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: nudbctl <create|insert|fetch|verify> [flags]")
}

func kindExitCode(k nudberr.Kind) int {
	switch k {
	case nudberr.KeyNotFound, nudberr.NotFound:
		return 3
	case nudberr.KeyExists, nudberr.AlreadyExists:
		return 4
	default:
		return 1
	}
}

type basePaths struct {
	dataPath, keyPath, logPath string
}

func bindPaths(fs *flag.FlagSet) *basePaths {
	p := &basePaths{}
	fs.StringVar(&p.dataPath, "dat", "", "data file path")
	fs.StringVar(&p.keyPath, "key", "", "key file path")
	fs.StringVar(&p.logPath, "log", "", "log file path")
	return p
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	paths := bindPaths(fs)
	appnum := fs.Uint64("appnum", 1, "application number")
	salt := fs.Uint64("salt", 42, "hash salt")
	keySize := fs.Uint("keysize", 8, "key size in bytes")
	blockSize := fs.Uint("blocksize", 4096, "bucket page size in bytes")
	loadFactor := fs.Float64("loadfactor", 0.9, "split threshold")
	fs.Parse(args)

	return nudb.Create(paths.dataPath, paths.keyPath, paths.logPath, nudb.CreateParams{
		AppNum:     *appnum,
		Salt:       *salt,
		KeySize:    uint16(*keySize),
		BlockSize:  uint16(*blockSize),
		LoadFactor: float32(*loadFactor),
	})
}

func runInsert(args []string) error {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	paths := bindPaths(fs)
	key := fs.String("k", "", "key bytes")
	value := fs.String("value", "", "value bytes")
	fs.Parse(args)

	s, err := nudb.Open(paths.dataPath, paths.keyPath, paths.logPath, nudb.WithLogger(zap.NewNop().Sugar()))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Insert([]byte(*key), []byte(*value)); err != nil {
		return err
	}
	return s.Flush()
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	paths := bindPaths(fs)
	key := fs.String("k", "", "key bytes")
	fs.Parse(args)

	s, err := nudb.Open(paths.dataPath, paths.keyPath, paths.logPath, nudb.WithLogger(zap.NewNop().Sugar()))
	if err != nil {
		return err
	}
	defer s.Close()

	value, err := s.Fetch([]byte(*key))
	if err != nil {
		return err
	}
	fmt.Println(string(value))
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	paths := bindPaths(fs)
	budget := fs.Int64("budget", 1<<20, "memory budget in bytes")
	fs.Parse(args)

	s, err := nudb.Open(paths.dataPath, paths.keyPath, paths.logPath, nudb.WithLogger(zap.NewNop().Sugar()))
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.Verify(*budget)
	if err != nil {
		return err
	}
	fmt.Printf("keys=%d spills=%d buckets=%d dataBytes=%d histogram=%v\n",
		info.KeyCount, info.SpillCount, info.BucketCount, info.DataBytes, info.Histogram)
	return nil
}
