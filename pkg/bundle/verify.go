package bundle

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/opencontainers/go-digest"
)

// Check is one verification step.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Report collects the outcome of Verify.
type Report struct {
	Path   string
	Checks []Check
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return len(r.Checks) > 0
}

func (r *Report) add(name string, err error, detail string) {
	c := Check{Name: name, OK: err == nil, Detail: detail}
	if err != nil {
		c.Detail = err.Error()
	}
	r.Checks = append(r.Checks, c)
}

// Verify opens path and checks the trailer, index, metadata, signature and
// every slot. Structural failures that stop verification early are recorded
// in the report; the error is only for failures to produce one.
func Verify(path string, logger hclog.Logger) (*Report, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	report := &Report{Path: path}

	r, err := Open(path, WithReaderLogger(logger))
	if err != nil {
		report.add("trailer", err, "")
		return report, nil
	}
	defer r.Close()
	report.add("trailer", nil, fmt.Sprintf("index checksum 0x%08x", r.Index().IndexChecksum))

	md, err := r.Metadata()
	if err != nil {
		report.add("metadata", err, "")
		return report, nil
	}
	report.add("metadata", nil, fmt.Sprintf("%s %s, %d slots", md.Format, md.Package.Name, len(md.Slots)))

	report.add("signature", r.VerifySeal(), "ed25519")

	for i, slot := range md.Slots {
		name := fmt.Sprintf("slot %d (%s)", i, slot.Target)
		data, err := r.ReadSlot(i)
		if err != nil {
			report.add(name, err, "")
			continue
		}
		report.add(name, verifyDigest(slot.Digest, data), slot.Digest)
	}

	logger.Debug("🔍 Verification finished", "path", path, "ok", report.OK())
	return report, nil
}

func verifyDigest(expected string, data []byte) error {
	d, err := digest.Parse(expected)
	if err != nil {
		return fmt.Errorf("invalid digest %q: %w", expected, err)
	}
	v := d.Verifier()
	if _, err := v.Write(data); err != nil {
		return err
	}
	if !v.Verified() {
		return fmt.Errorf("digest mismatch: expected %s, got %s", d, d.Algorithm().FromBytes(data))
	}
	return nil
}
