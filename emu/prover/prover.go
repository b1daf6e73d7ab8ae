/*
 * zkRISCV - Remote prover client.
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

// Package prover talks to a remote proving service. Local execution is
// skipped entirely when a remote prover is configured; the service only
// needs the image commitment and the input to reproduce the run.
package prover

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a remote prover endpoint.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient builds a client for the given base URL.
func NewClient(base string) *Client {
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type registerRequest struct {
	ImageID string `json:"image_id"`
	Input   string `json:"input"`
}

type registerResponse struct {
	ProofID int64 `json:"proof_id"`
}

type runResponse struct {
	Status string `json:"status"`
}

func (c *Client) post(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.hc.Post(c.base+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prover: %s returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterProof registers a run with the service and returns its proof
// id. imageID is the hex Merkle root of the initial memory image.
func (c *Client) RegisterProof(imageID string, input []byte) (int64, error) {
	req := registerRequest{
		ImageID: imageID,
		Input:   base64.StdEncoding.EncodeToString(input),
	}
	var resp registerResponse
	if err := c.post("/proofs", req, &resp); err != nil {
		return 0, err
	}
	return resp.ProofID, nil
}

// RunProof asks the service to execute and prove a registered run.
func (c *Client) RunProof(proofID int64) (string, error) {
	var resp runResponse
	if err := c.post(fmt.Sprintf("/proofs/%d/run", proofID), struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
