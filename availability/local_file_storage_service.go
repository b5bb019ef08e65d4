// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/rollups-settlement/settlement/util/pretty"
)

const (
	byDataHash         = "by-data-hash"
	compressedSuffix   = ".br"
	maxCompressedLevel = brotli.BestCompression
)

type LocalFileStorageConfig struct {
	Enable           bool   `koanf:"enable"`
	DataDir          string `koanf:"data-dir"`
	CompressionLevel int    `koanf:"compression-level"`
}

var DefaultLocalFileStorageConfig = LocalFileStorageConfig{
	CompressionLevel: -1,
}

func LocalFileStorageConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultLocalFileStorageConfig.Enable, "enable storage of payloads in a directory of files, one per payload")
	f.String(prefix+".data-dir", DefaultLocalFileStorageConfig.DataDir, "local data directory")
	f.Int(prefix+".compression-level", DefaultLocalFileStorageConfig.CompressionLevel, "brotli compression level for new files, negative to store them uncompressed")
}

func (c *LocalFileStorageConfig) Validate() error {
	if c.CompressionLevel > maxCompressedLevel {
		return fmt.Errorf("invalid compression level %d, maximum is %d", c.CompressionLevel, maxCompressedLevel)
	}
	return nil
}

// LocalFileStorageService stores each payload in its own file under
// by-data-hash/<1st byte>/<2nd byte>/<hash>. Files may be brotli
// compressed, in which case their name carries a .br suffix.
type LocalFileStorageService struct {
	dataDir          string
	compressionLevel int
}

func NewLocalFileStorageService(config LocalFileStorageConfig) (*LocalFileStorageService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if unix.Access(config.DataDir, unix.W_OK|unix.R_OK) != nil {
		return nil, fmt.Errorf("couldn't start LocalFileStorageService, directory '%s' must be readable and writeable", config.DataDir)
	}
	return &LocalFileStorageService{
		dataDir:          config.DataDir,
		compressionLevel: config.CompressionLevel,
	}, nil
}

func (s *LocalFileStorageService) payloadPath(hash common.Hash) string {
	encoded := common.Bytes2Hex(hash.Bytes())
	return filepath.Join(s.dataDir, byDataHash, encoded[0:2], encoded[2:4], encoded)
}

func (s *LocalFileStorageService) GetByHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	log.Trace("availability.LocalFileStorageService.GetByHash", "key", pretty.PrettyHash(hash), "this", s)
	payloadPath := s.payloadPath(hash)
	data, err := os.ReadFile(payloadPath)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	compressed, err := os.ReadFile(payloadPath + compressedSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	data, err = io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", payloadPath, err)
	}
	return data, nil
}

func (s *LocalFileStorageService) Put(ctx context.Context, data []byte) error {
	logPut("availability.LocalFileStorageService.Put", data, s)
	payloadPath := s.payloadPath(HashPayload(data))
	contents := data
	if s.compressionLevel >= 0 {
		var buf bytes.Buffer
		writer := brotli.NewWriterLevel(&buf, s.compressionLevel)
		if _, err := writer.Write(data); err != nil {
			return err
		}
		if err := writer.Close(); err != nil {
			return err
		}
		contents = buf.Bytes()
		payloadPath += compressedSuffix
	}
	if err := os.MkdirAll(filepath.Dir(payloadPath), 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(payloadPath), err)
	}

	// Use a temp file and rename to achieve atomic writes.
	f, err := os.CreateTemp(filepath.Dir(payloadPath), filepath.Base(payloadPath))
	if err != nil {
		return err
	}
	if err := writeTempFile(f, contents, payloadPath); err != nil {
		if removeErr := os.Remove(f.Name()); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			log.Warn("failed to remove temporary payload file", "file", f.Name(), "err", removeErr)
		}
		return err
	}
	return nil
}

func writeTempFile(f *os.File, contents []byte, target string) error {
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(contents); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), target)
}

func (s *LocalFileStorageService) Sync(ctx context.Context) error {
	return nil
}

func (s *LocalFileStorageService) Close(ctx context.Context) error {
	return nil
}

func (s *LocalFileStorageService) String() string {
	return "LocalFileStorageService(" + s.dataDir + ")"
}

func (s *LocalFileStorageService) HealthCheck(ctx context.Context) error {
	return checkStorage(ctx, s)
}
