package types

import "testing"

func TestLinkMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    LinkMeta
		wantErr bool
	}{
		{
			name:    "valid overlay link",
			meta:    LinkMeta{SessionID: "session-001", Surface: SurfaceOverlay},
			wantErr: false,
		},
		{
			name:    "valid tracking link with version",
			meta:    LinkMeta{SessionID: "session-002", Surface: SurfaceTracking, Version: Version},
			wantErr: false,
		},
		{
			name:    "empty session id",
			meta:    LinkMeta{SessionID: "", Surface: SurfaceOverlay},
			wantErr: true,
		},
		{
			name:    "unknown surface",
			meta:    LinkMeta{SessionID: "session-001", Surface: "sidebar"},
			wantErr: true,
		},
		{
			name:    "missing surface",
			meta:    LinkMeta{SessionID: "session-001"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
