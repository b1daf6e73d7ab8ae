/*
 * zkRISCV - Remote prover client test cases.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package prover

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterAndRun(t *testing.T) {
	var gotImage, gotInput string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/proofs":
			var req struct {
				ImageID string `json:"image_id"`
				Input   string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Error(err)
			}
			gotImage, gotInput = req.ImageID, req.Input
			json.NewEncoder(w).Encode(map[string]int64{"proof_id": 17})
		case "/proofs/17/run":
			json.NewEncoder(w).Encode(map[string]string{"status": "running"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	proofID, err := client.RegisterProof("abcd1234", []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if proofID != 17 {
		t.Errorf("proof id %d", proofID)
	}
	if gotImage != "abcd1234" {
		t.Errorf("image id %q", gotImage)
	}
	if gotInput != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Errorf("input %q", gotInput)
	}

	status, err := client.RunProof(proofID)
	if err != nil {
		t.Fatal(err)
	}
	if status != "running" {
		t.Errorf("status %q", status)
	}
}

func TestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.RegisterProof("x", nil); err == nil {
		t.Error("server error not surfaced")
	}
}
