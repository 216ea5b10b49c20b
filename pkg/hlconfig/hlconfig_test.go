package hlconfig

import "testing"

func TestLoadBytesKeepsDefaultsForOmittedKeys(t *testing.T) {
	opts, err := LoadBytes([]byte(`
[render]
indent-width = 2
`))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if opts.Render.IndentWidth != 2 {
		t.Errorf("Render.IndentWidth = %d, want 2", opts.Render.IndentWidth)
	}
	if !opts.Optimize.FoldConstants {
		t.Error("Optimize.FoldConstants = false, want default true to survive an unrelated override")
	}
	if opts.Codec.MaxVersion != 5 {
		t.Errorf("Codec.MaxVersion = %d, want default 5", opts.Codec.MaxVersion)
	}
}

func TestMarshalBytesRoundTrip(t *testing.T) {
	opts := Default()
	opts.Render.ShowOpcodeRefs = true
	opts.Optimize.RecognizeClosures = false

	buf, err := MarshalBytes(opts)
	if err != nil {
		t.Fatalf("MarshalBytes() error = %v", err)
	}

	got, err := LoadBytes(buf)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if got.Render.ShowOpcodeRefs != true {
		t.Error("Render.ShowOpcodeRefs did not survive round trip")
	}
	if got.Optimize.RecognizeClosures != false {
		t.Error("Optimize.RecognizeClosures did not survive round trip")
	}
}

func TestLoadBytesRejectsMalformedToml(t *testing.T) {
	_, err := LoadBytes([]byte("not = [valid"))
	if err == nil {
		t.Error("LoadBytes() error = nil, want an error for malformed TOML")
	}
}
