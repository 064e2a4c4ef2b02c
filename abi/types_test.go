package abi

import (
	"testing"

	"github.com/wippyai/syngen"
)

func TestArray_EncodeDecode(t *testing.T) {
	mem := syngen.NewBytes(64)
	want := Array{Size: 3, Type: ElemString, Data: 40, Owner: true}
	if err := want.Encode(mem, 16); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeArray(mem, 16)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("DecodeArray = %+v, want %+v", got, want)
	}
}

func TestDecodeArray_OutOfBounds(t *testing.T) {
	mem := syngen.NewBytes(16)
	if _, err := DecodeArray(mem, 8); err == nil {
		t.Error("expected out of bounds error")
	}
}

func TestOwnershipFor(t *testing.T) {
	tests := []struct {
		entry string
		desc  Array
		want  Ownership
	}{
		{EntryGetKeys, Array{}, Deep},
		{EntryGetChildArrayKeys, Array{}, Deep},
		{EntryGetArray, Array{}, Shallow},
		{EntryGetChildArray, Array{}, Shallow},
		{EntryGetGPUs, Array{}, Shallow},
		{EntryGetWeightMatrix, Array{}, NotOwned},
		{EntryGetWeightMatrix, Array{Owner: true}, Shallow},
		{"unknown", Array{Owner: true}, NotOwned},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			if got := OwnershipFor(tt.entry, tt.desc); got != tt.want {
				t.Errorf("OwnershipFor(%s) = %v, want %v", tt.entry, got, tt.want)
			}
		})
	}
}
