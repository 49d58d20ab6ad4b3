package openseal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/highstation/gateway/pkg/domain"
)

// DefaultBinaryName is the canonical verifier binary probed for on PATH.
const DefaultBinaryName = "openseal"

// Stdout markers emitted by the canonical verifier CLI.
const (
	markerSignatureValid = "Signature Valid: ✅"
	markerIdentityValid  = "Identity Valid: ✅"
	markerResultPrefix   = "Result: "
)

// ExternalVerifier shells out to the canonical OpenSeal verifier binary.
// When deployed it is treated as the source of truth: future protocol
// revisions land there before the native path catches up.
type ExternalVerifier struct {
	binary string
	logger *slog.Logger
}

// NewExternalVerifier wraps the verifier binary at path.
func NewExternalVerifier(path string, logger *slog.Logger) *ExternalVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalVerifier{binary: path, logger: logger}
}

// Verify hands the envelope to the canonical binary via a uniquely named
// temp file, which is removed on every exit path. Subprocess failures
// degrade to a failed VerificationResult, never a crash.
func (v *ExternalVerifier) Verify(ctx context.Context, env *Envelope, wax, expectedRootHash string) domain.VerificationResult {
	if env == nil || env.Result == nil || !env.Seal.Complete() {
		return domain.VerificationResult{Message: MsgIncomplete}
	}

	payload, err := json.Marshal(env)
	if err != nil {
		v.logger.Warn("openseal: envelope marshal failed", "error", err)
		return domain.VerificationResult{Message: fmt.Sprintf("Verifier error: %v", err)}
	}

	tmp, err := os.CreateTemp("", "openseal-response-*.json")
	if err != nil {
		v.logger.Warn("openseal: temp file creation failed", "error", err)
		return domain.VerificationResult{Message: fmt.Sprintf("Verifier error: %v", err)}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return domain.VerificationResult{Message: fmt.Sprintf("Verifier error: %v", err)}
	}
	if err := tmp.Close(); err != nil {
		return domain.VerificationResult{Message: fmt.Sprintf("Verifier error: %v", err)}
	}

	args := []string{"verify", "--response", tmp.Name(), "--wax", wax}
	if expectedRootHash != "" {
		args = append(args, "--root-hash", expectedRootHash)
	}

	cmd := exec.CommandContext(ctx, v.binary, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	runErr := cmd.Run()
	result := parseVerifierOutput(stdout.String(), runErr == nil)

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The binary did not run at all (killed, not found, ...).
			v.logger.Warn("openseal: canonical verifier invocation failed",
				"binary", v.binary,
				"error", runErr,
			)
			result.Message = fmt.Sprintf("Verifier error: %v", runErr)
			result.SignatureVerified = false
			result.IdentityVerified = false
		}
	}
	return result
}

// parseVerifierOutput maps the CLI's exit status and stdout markers onto a
// VerificationResult.
func parseVerifierOutput(output string, exitZero bool) domain.VerificationResult {
	result := domain.VerificationResult{
		Valid:             exitZero,
		SignatureVerified: strings.Contains(output, markerSignatureValid),
		IdentityVerified:  strings.Contains(output, markerIdentityValid),
	}

	if exitZero {
		result.Message = MsgValid
		return result
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if msg, ok := strings.CutPrefix(line, markerResultPrefix); ok {
			result.Message = strings.TrimSpace(msg)
			break
		}
	}
	if result.Message == "" {
		result.Message = "Verification failed"
	}
	return result
}

// Available probes for the canonical verifier binary. An explicit path wins;
// otherwise PATH is searched for DefaultBinaryName.
func Available(explicitPath string) (string, bool) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return explicitPath, true
		}
		return "", false
	}
	path, err := exec.LookPath(DefaultBinaryName)
	if err != nil {
		return "", false
	}
	return path, true
}

// NewVerifier selects the verification strategy at startup: the canonical
// binary when present, the native implementation otherwise. Both paths
// implement the identical protocol.
func NewVerifier(binaryPath string, logger *slog.Logger) Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if path, ok := Available(binaryPath); ok {
		logger.Info("openseal: using canonical verifier binary", "path", path)
		return NewExternalVerifier(path, logger)
	}
	logger.Info("openseal: canonical verifier not found, using native verifier")
	return NewNativeVerifier(logger)
}
