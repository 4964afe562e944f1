// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import (
	"bytes"
	"testing"
)

func TestSetupPacket(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup SetupPacket
		want  []byte
	}{
		{
			name: "get-descriptor",
			setup: SetupPacket{
				BMRequestType: EndpointDirIn,
				BRequest:      ReqGetDescriptor,
				WValue:        DTDevice << 8,
				WLength:       8,
			},
			want: []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x08, 0x00},
		},
		{
			name: "set-address",
			setup: SetupPacket{
				BMRequestType: EndpointDirOut,
				BRequest:      ReqSetAddress,
				WValue:        1,
			},
			want: []byte{0x00, 0x05, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			name: "clear-hub-feature",
			setup: SetupPacket{
				BMRequestType: TypeClass,
				BRequest:      ReqClearFeature,
				WValue:        FeatureCPortConnection,
				WIndex:        1,
			},
			want: []byte{0x20, 0x01, 0x10, 0x00, 0x01, 0x00, 0x00, 0x00},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.setup.Bytes()
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("invalid encoding:\ngot= %x\nwant=%x", got, tc.want)
			}

			dec, err := SetupFrom(got)
			if err != nil {
				t.Fatalf("could not decode setup packet: %+v", err)
			}
			if dec != tc.setup {
				t.Fatalf("round trip failed:\ngot= %#v\nwant=%#v", dec, tc.setup)
			}
		})
	}

	t.Run("short", func(t *testing.T) {
		_, err := SetupFrom([]byte{0x80, 0x06})
		if err == nil {
			t.Fatalf("expected an error decoding a short packet")
		}
		if got, want := err.Error(), "usb: setup packet too short (got=2, want=8)"; got != want {
			t.Fatalf("invalid error: got=%q, want=%q", got, want)
		}
	})

	t.Run("direction", func(t *testing.T) {
		st := SetupPacket{BMRequestType: EndpointDirIn | TypeClass}
		if !st.In() {
			t.Fatalf("IN setup not flagged as IN")
		}
		if got, want := st.Type(), uint8(TypeClass); got != want {
			t.Fatalf("invalid type: got=0x%02x, want=0x%02x", got, want)
		}
	})
}
