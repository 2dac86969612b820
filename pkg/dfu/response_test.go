// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

import "testing"

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
		check   func(t *testing.T, n Notification)
	}{
		{
			name: "success response",
			data: []byte{0x10, 0x01, 0x01},
			check: func(t *testing.T, n Notification) {
				if n.Op != OpResponseCode {
					t.Errorf("Op = %s, want RESPONSE_CODE", n.Op)
				}
				if n.Response.Request != OpStartDfu {
					t.Errorf("Request = %s, want START_DFU", n.Response.Request)
				}
				if n.Response.Result != ResultSuccess {
					t.Errorf("Result = %s, want success", n.Response.Result)
				}
			},
		},
		{
			name: "error response",
			data: []byte{0x10, 0x04, 0x05},
			check: func(t *testing.T, n Notification) {
				if n.Response.Request != OpValidate || n.Response.Result != ResultCrcError {
					t.Errorf("got %s/%s, want VALIDATE/CRC error", n.Response.Request, n.Response.Result)
				}
			},
		},
		{
			name: "packet receipt",
			data: []byte{0x11, 0x28, 0x00, 0x00, 0x00},
			check: func(t *testing.T, n Notification) {
				if n.Op != OpPacketReceiptNotif {
					t.Errorf("Op = %s, want PACKET_RECEIPT_NOTIF", n.Op)
				}
				if n.BytesReceived != 40 {
					t.Errorf("BytesReceived = %d, want 40", n.BytesReceived)
				}
			},
		},
		{
			name: "large receipt count",
			data: []byte{0x11, 0x00, 0x00, 0x01, 0x00},
			check: func(t *testing.T, n Notification) {
				if n.BytesReceived != 0x10000 {
					t.Errorf("BytesReceived = %d, want %d", n.BytesReceived, 0x10000)
				}
			},
		},
		{name: "empty", data: nil, wantErr: true},
		{name: "short response", data: []byte{0x10, 0x01}, wantErr: true},
		{name: "short receipt", data: []byte{0x11, 0x28, 0x00}, wantErr: true},
		{name: "unknown opcode", data: []byte{0x42, 0x00, 0x00}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNotification(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, n)
		})
	}
}
