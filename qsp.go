// Package qsp implements a post-quantum image lock/unlock pipeline.
//
// A secret image is authorized with a Module-LWE lattice signature, split into
// Asmuth-Bloom CRT threshold shares after an Arnold cat-map scramble, and each
// share is hidden inside a cover image with an 8x8 block DCT steganographic
// codec. Any quorum of share holders can later extract, authenticate and
// reconstruct the secret.
//
// WARNING: The lattice signature parameters follow a research prototype and
// have NOT been reviewed for production use. DO NOT rely on them to protect
// sensitive data.
package qsp

// Version of the qsp Go implementation.
const Version = "2.0.0"

// ManifestVersion is written into every asset manifest.
const ManifestVersion = "QSP-2.0"

// API summary:
//
// Lattice signatures:
//   - mlwe.NewRing(params) - Build the polynomial ring context
//   - mlwe.GenerateKeyPair(ring) - Generate a single-party key pair
//   - mlwe.SetupSystem(ring, n) - Trusted-dealer setup for n parties
//   - sign.Sign(ring, sk, message) / sign.Verify(ring, pk, message, sig)
//   - threshold.RunSession(ctx, signers, aggregator, message, maxAttempts) - Threshold signing
//
// Secret sharing:
//   - sharing.GenerateModuli(n, t, pixelMax, q0) - Asmuth-Bloom moduli
//   - sharing.NewScrambler(params).Scramble(raster)
//   - sharing.NewSplitter(params, t).Split(scrambled, original, moduli)
//   - sharing.NewReconstructor(params, t).Reconstruct(payloads)
//
// Steganography:
//   - stego.NewCodec(params).Embed(cover, payload) / Extract(stego)
//
// Orchestration:
//   - identity.Generate(ring, alias) / identity.Save(dir, id)
//   - dealer.NewLocker(params, log).Lock(ctx, req)
//   - dealer.NewUnlocker(params, log).Unlock(ctx, req)
//   - cmd/qsp-cli - Command line front end
