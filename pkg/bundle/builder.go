package bundle

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/provide-io/bundlespec/pkg/bundle/operations"
	_ "github.com/provide-io/bundlespec/pkg/bundle/operations/compress"
)

// ToolName and ToolVersion are recorded in build metadata.
var (
	ToolName    = "bundlespec"
	ToolVersion = "0.1.0"
)

// Slot is one input of a build.
type Slot struct {
	Kind SlotKind

	// Source is a file or directory on disk. Directories are stored as tar.
	Source string

	// Target is the slash-separated path below the extraction root. For a
	// directory source it is the directory its contents unpack into.
	Target string

	// Mode overrides the permissions taken from Source.
	Mode fs.FileMode

	// Omit lists slash-separated paths below a directory Source that are
	// left out of the archive.
	Omit []string
}

// Manifest describes one bundle.
type Manifest struct {
	Name        string
	Version     string
	Entry       EntryInfo
	SearchPaths []string
	Console     bool
	Debug       bool
	Strip       bool

	// Codec is the compression operation applied to every slot; OpNone
	// stores slots raw.
	Codec uint8

	Modules ModuleInfo
	Slots   []Slot
}

// Result summarizes a finished build.
type Result struct {
	Path      string
	Size      int64
	Index     *Index
	Metadata  *Metadata
	KeySource KeySource
}

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	logger      hclog.Logger
	signer      *Signer
	concurrency int
	timestamp   time.Time
	resources   *Resources
}

// WithLogger sets the build logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *buildConfig) { c.logger = l }
}

// WithSigner sets the signing key. Without it an ephemeral key is used.
func WithSigner(s *Signer) Option {
	return func(c *buildConfig) { c.signer = s }
}

// WithConcurrency bounds how many slots are encoded at once.
func WithConcurrency(n int) Option {
	return func(c *buildConfig) { c.concurrency = n }
}

// WithTimestamp fixes the build time recorded in metadata and archives.
func WithTimestamp(t time.Time) Option {
	return func(c *buildConfig) { c.timestamp = t }
}

// WithResources sets PE resources applied to Windows launchers.
func WithResources(r *Resources) Option {
	return func(c *buildConfig) { c.resources = r }
}

// BuildTimestamp returns the time from SOURCE_DATE_EPOCH (Unix seconds), or
// the current time.
func BuildTimestamp() time.Time {
	if v := os.Getenv("SOURCE_DATE_EPOCH"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Now().UTC()
}

type encodedSlot struct {
	desc SlotDescriptor
	info SlotInfo
	data []byte
}

// Build writes the artifact for m to outputPath, prefixed by the launcher
// binary at launcherPath.
func Build(ctx context.Context, m *Manifest, launcherPath, outputPath string, opts ...Option) (*Result, error) {
	cfg := &buildConfig{
		logger:      hclog.NewNullLogger(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.timestamp.IsZero() {
		cfg.timestamp = BuildTimestamp()
	}
	logger := cfg.logger

	if m.Entry.Path == "" {
		return nil, fmt.Errorf("manifest has no entry point")
	}
	if cfg.signer == nil {
		s, err := NewSigner(KeyConfig{})
		if err != nil {
			return nil, err
		}
		cfg.signer = s
	}

	logger.Info("🚀 Loading launcher", "path", launcherPath)
	launcher, err := os.ReadFile(launcherPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read launcher: %w", err)
	}
	launcher, subsystem, err := prepareLauncher(launcher, m, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("✅ Launcher prepared", "size", len(launcher), "subsystem", subsystem)

	slots, err := encodeSlots(ctx, m, cfg, logger)
	if err != nil {
		return nil, err
	}

	metadata := buildMetadata(m, cfg, slots, launcher, subsystem)
	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	compressedMeta, err := gzipBytes(metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compress metadata: %w", err)
	}

	index := &Index{
		FormatVersion:  FormatVersion,
		LauncherSize:   uint64(len(launcher)),
		MetadataOffset: uint64(len(launcher)),
		MetadataSize:   uint64(len(compressedMeta)),
		SlotCount:      uint32(len(slots)),
		SlotTableSize:  uint64(len(slots) * SlotDescriptorSize),
		Flags:          flagsFor(m),
		BuildTimestamp: uint64(cfg.timestamp.Unix()),
	}
	index.SlotTableOffset = uint64(AlignOffset(int64(index.MetadataOffset+index.MetadataSize), SlotAlignment))
	copy(index.PublicKey[:], cfg.signer.Public)
	copy(index.Signature[:], cfg.signer.Sign(metadataJSON))
	index.MetadataChecksum = sha256.Sum256(compressedMeta)

	var payload bytes.Buffer
	payload.Write(launcher)
	payload.Write(compressedMeta)
	pad(&payload, int64(index.SlotTableOffset))
	tablePos := payload.Len()
	payload.Write(make([]byte, index.SlotTableSize))

	for i := range slots {
		pad(&payload, AlignOffset(int64(payload.Len()), SlotAlignment))
		slots[i].desc.Offset = uint64(payload.Len())
		payload.Write(slots[i].data)
		logger.Debug("✍️ Wrote slot", "index", i, "target", slots[i].info.Target,
			"offset", slots[i].desc.Offset, "size", slots[i].desc.Size)
	}
	table := payload.Bytes()[tablePos : tablePos+int(index.SlotTableSize)]
	for i := range slots {
		copy(table[i*SlotDescriptorSize:], slots[i].desc.Pack())
	}

	index.PackageSize = uint64(payload.Len() + TrailerSize)
	index.Seal()
	logger.Debug("🔐 Index sealed", "checksum", fmt.Sprintf("0x%08x", index.IndexChecksum))

	payload.Write(PackageEmojiBytes)
	payload.Write(index.Pack())
	payload.Write(MagicWandEmojiBytes)

	if err := writeAtomic(outputPath, payload.Bytes()); err != nil {
		return nil, err
	}

	logger.Info("✅ Bundle written",
		"output", outputPath,
		"package", m.Name,
		"slots", len(slots),
		"size", fmt.Sprintf("%.2f MB", float64(index.PackageSize)/(1024*1024)))

	return &Result{
		Path:      outputPath,
		Size:      int64(index.PackageSize),
		Index:     index,
		Metadata:  metadata,
		KeySource: cfg.signer.Source,
	}, nil
}

func prepareLauncher(launcher []byte, m *Manifest, cfg *buildConfig, logger hclog.Logger) ([]byte, string, error) {
	if !IsPE(launcher) {
		return launcher, "", nil
	}

	var err error
	if cfg.resources != nil && !cfg.resources.Empty() {
		logger.Info("🪟 Applying PE resources", "icon", cfg.resources.IconPath,
			"uac_admin", cfg.resources.RequireAdmin, "version", cfg.resources.Version)
		launcher, err = cfg.resources.Apply(launcher)
		if err != nil {
			return nil, "", fmt.Errorf("failed to apply PE resources: %w", err)
		}
	}

	subsystem := SubsystemConsole
	if !m.Console {
		subsystem = SubsystemGUI
	}
	if err := SetSubsystem(launcher, subsystem); err != nil {
		return nil, "", fmt.Errorf("failed to set PE subsystem: %w", err)
	}
	return launcher, SubsystemName(subsystem), nil
}

func encodeSlots(ctx context.Context, m *Manifest, cfg *buildConfig, logger hclog.Logger) ([]encodedSlot, error) {
	out := make([]encodedSlot, len(m.Slots))

	g, ctx := errgroup.WithContext(ctx)
	if cfg.concurrency > 0 {
		g.SetLimit(cfg.concurrency)
	}
	for i := range m.Slots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := encodeSlot(i, &m.Slots[i], m, cfg)
			if err != nil {
				return fmt.Errorf("slot %d (%s): %w", i, m.Slots[i].Source, err)
			}
			logger.Trace("📦 Encoded slot", "index", i, "target", s.info.Target,
				"operations", s.info.Operations, "raw", s.desc.OriginalSize, "stored", s.desc.Size)
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeSlot(i int, s *Slot, m *Manifest, cfg *buildConfig) (encodedSlot, error) {
	info, err := os.Stat(s.Source)
	if err != nil {
		return encodedSlot{}, err
	}

	var (
		raw []byte
		ops []uint8
	)
	if info.IsDir() {
		raw, err = TarDir(s.Source, cfg.timestamp, s.Omit...)
		ops = append(ops, operations.OpTar)
	} else {
		raw, err = os.ReadFile(s.Source)
	}
	if err != nil {
		return encodedSlot{}, err
	}
	if m.Codec != operations.OpNone {
		ops = append(ops, m.Codec)
	}
	chain, err := operations.Pack(ops)
	if err != nil {
		return encodedSlot{}, err
	}
	stored, err := operations.Encode(raw, chain)
	if err != nil {
		return encodedSlot{}, err
	}

	mode := s.Mode
	if mode == 0 {
		mode = info.Mode().Perm()
	}

	slotInfo := SlotInfo{
		Index:       i,
		Kind:        s.Kind.String(),
		Target:      s.Target,
		Size:        int64(len(raw)),
		Digest:      digest.FromBytes(raw).String(),
		Operations:  operations.String(chain),
		Permissions: fmt.Sprintf("%04o", uint32(mode.Perm())),
	}
	if !m.Strip {
		slotInfo.Source = s.Source
	}

	return encodedSlot{
		desc: SlotDescriptor{
			ID:           uint64(i),
			NameHash:     HashName(s.Target),
			Size:         uint64(len(stored)),
			OriginalSize: uint64(len(raw)),
			Operations:   chain,
			Checksum:     SlotChecksum(stored),
			Kind:         s.Kind,
			Permissions:  uint16(mode.Perm()),
		},
		info: slotInfo,
		data: stored,
	}, nil
}

func buildMetadata(m *Manifest, cfg *buildConfig, slots []encodedSlot, launcher []byte, subsystem string) *Metadata {
	md := &Metadata{
		Format:      FormatName,
		Package:     PackageInfo{Name: m.Name, Version: m.Version},
		Entry:       m.Entry,
		SearchPaths: m.SearchPaths,
		Options: OptionsInfo{
			Console:    m.Console,
			Compressed: m.Codec != operations.OpNone,
			Debug:      m.Debug,
			Stripped:   m.Strip,
		},
		Modules: m.Modules,
		Slots:   make([]SlotInfo, len(slots)),
		Build: &BuildInfo{
			Tool:        ToolName,
			ToolVersion: ToolVersion,
			Timestamp:   cfg.timestamp.Format(time.RFC3339),
			Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		},
		Launcher: &LauncherInfo{
			Size:      int64(len(launcher)),
			Digest:    digest.FromBytes(launcher).String(),
			Subsystem: subsystem,
		},
	}
	if !m.Strip {
		md.Build.Host, _ = os.Hostname()
	}
	for i := range slots {
		md.Slots[i] = slots[i].info
	}
	return md
}

func flagsFor(m *Manifest) uint32 {
	flags := FlagSigned
	if m.Console {
		flags |= FlagConsole
	}
	if m.Codec != operations.OpNone {
		flags |= FlagCompressed
	}
	if m.Debug {
		flags |= FlagDebug
	}
	if m.Strip {
		flags |= FlagStripped
	}
	return flags
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pad(buf *bytes.Buffer, to int64) {
	if n := to - int64(buf.Len()); n > 0 {
		buf.Write(make([]byte, n))
	}
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), ExecutablePerms); err != nil {
		return fmt.Errorf("failed to make output executable: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
