package normalize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	onnxrt "github.com/yalue/onnxruntime_go"

	"github.com/MeKo-Tech/idscan/internal/utils"
)

// ModelDetector runs a document segmentation model (UVDoc-style output,
// mask in channel 2) and derives the boundary quad from the mask. When the
// model finds nothing the fallback detector is consulted.
type ModelDetector struct {
	cfg      Config
	fallback BoundaryDetector

	mu      sync.Mutex
	session *onnxrt.DynamicAdvancedSession
}

// NewModelDetector loads the model configured in cfg.Model.
func NewModelDetector(cfg Config, fallback BoundaryDetector) (*ModelDetector, error) {
	if _, err := os.Stat(cfg.Model.ModelPath); err != nil {
		return nil, fmt.Errorf("boundary model not found: %s", cfg.Model.ModelPath)
	}
	if cfg.Model.InputSize < 32 || cfg.Model.InputSize%32 != 0 {
		return nil, fmt.Errorf("model input size must be a positive multiple of 32, got %d", cfg.Model.InputSize)
	}
	sess, err := createSession(cfg.Model)
	if err != nil {
		return nil, err
	}
	return &ModelDetector{cfg: cfg, fallback: fallback, session: sess}, nil
}

// Close releases the ONNX session.
func (m *ModelDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		_ = m.session.Destroy()
		m.session = nil
	}
}

// DetectBoundary implements BoundaryDetector.
func (m *ModelDetector) DetectBoundary(ctx context.Context, img *image.Gray) (Boundary, error) {
	if err := ctx.Err(); err != nil {
		return Boundary{}, err
	}
	size := m.cfg.Model.InputSize
	mask, err := m.infer(img, size)
	if err != nil {
		slog.Warn("Boundary model failed, using contour detection", "error", err)
		return m.useFallback(ctx, img)
	}

	var pts []utils.Point
	for y := range size {
		for x := range size {
			if float64(mask[y*size+x]) >= m.cfg.Model.MaskThreshold {
				pts = append(pts, utils.Point{X: float64(x), Y: float64(y)})
			}
		}
	}
	if len(pts) < 100 {
		return m.useFallback(ctx, img)
	}

	quad, err := quadFromPoints(pts)
	if err != nil {
		return m.useFallback(ctx, img)
	}
	b := img.Bounds()
	full := scaleQuad(quad, b.Dx(), b.Dy(), size, size)

	// Validate on the true frame geometry rather than the square model input.
	if nearFrame(full, b.Dx(), b.Dy(), m.cfg.MaxSkew) {
		return NewContourDetector(m.cfg).canonical(img)
	}
	if err := validateQuad(full, b.Dx(), b.Dy(), m.cfg); err != nil {
		return m.useFallback(ctx, img)
	}
	return Boundary{Quad: full}, nil
}

func (m *ModelDetector) useFallback(ctx context.Context, img *image.Gray) (Boundary, error) {
	if m.fallback == nil {
		return Boundary{}, boundaryNotFound("model produced no document mask")
	}
	return m.fallback.DetectBoundary(ctx, img)
}

// infer returns the mask channel of the model output at size x size.
func (m *ModelDetector) infer(img *image.Gray, size int) ([]float32, error) {
	resized := imaging.Resize(img, size, size, imaging.Lanczos)
	plane := size * size
	data := make([]float32, 3*plane)
	for y := range size {
		for x := range size {
			v := float32(resized.Pix[y*resized.Stride+x*4]) / 255
			i := y*size + x
			data[i] = v
			data[plane+i] = v
			data[2*plane+i] = v
		}
	}

	input, err := onnxrt.NewTensor(onnxrt.NewShape(1, 3, int64(size), int64(size)), data)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, errors.New("session closed")
	}
	outs := []onnxrt.Value{nil}
	if err := m.session.Run([]onnxrt.Value{input}, outs); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	if outs[0] == nil {
		return nil, errors.New("no output from model")
	}
	defer func() { _ = outs[0].Destroy() }()

	t, ok := outs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return nil, errors.New("invalid output tensor type")
	}
	shape := t.GetShape()
	if len(shape) != 4 || shape[1] < 3 || int(shape[2]) != size || int(shape[3]) != size {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	out := t.GetData()
	mask := make([]float32, plane)
	copy(mask, out[2*plane:3*plane])
	return mask, nil
}

func createSession(cfg ModelConfig) (*onnxrt.DynamicAdvancedSession, error) {
	if path := findONNXLibrary(); path != "" {
		onnxrt.SetSharedLibraryPath(path)
	}
	if !onnxrt.IsInitialized() {
		if err := onnxrt.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnx: %w", err)
		}
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}

	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer func() { _ = opts.Destroy() }()
	if cfg.NumThreads > 0 {
		_ = opts.SetIntraOpNumThreads(cfg.NumThreads)
	}

	sess, err := onnxrt.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return sess, nil
}

// findONNXLibrary looks for the runtime in ONNXRUNTIME_LIB, the system
// library paths and ./onnxruntime/lib.
func findONNXLibrary() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	var name string
	switch runtime.GOOS {
	case "darwin":
		name = "libonnxruntime.dylib"
	case "windows":
		name = "onnxruntime.dll"
	default:
		name = "libonnxruntime.so"
	}
	candidates := []string{
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/usr/lib", name),
		filepath.Join("/opt/onnxruntime/cpu/lib", name),
		filepath.Join("onnxruntime", "lib", name),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
