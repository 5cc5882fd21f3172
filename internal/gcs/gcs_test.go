package gcs

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{
			name:       "valid",
			uri:        "gs://my-bucket/statements/b1/2024/01/02/file.csv",
			wantBucket: "my-bucket",
			wantObject: "statements/b1/2024/01/02/file.csv",
		},
		{name: "missing scheme", uri: "my-bucket/file.csv", wantErr: true},
		{name: "http scheme", uri: "https://example.com/file.csv", wantErr: true},
		{name: "bucket only", uri: "gs://my-bucket", wantErr: true},
		{name: "empty object", uri: "gs://my-bucket/", wantErr: true},
		{name: "empty", uri: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.uri)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q) failed: %v", tt.uri, err)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("got (%q, %q), want (%q, %q)", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}
