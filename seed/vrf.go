// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package seed

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/vechain/go-ecvrf"

	"github.com/vechain/burnpool/burn"
)

// VRFEntropy proves a secp256k1 VRF over a fresh alpha and uses the output as seed.
// The alpha and the proof are logged, so holders of the public key can check the seed
// with VerifyVRF.
type VRFEntropy struct {
	key   *ecdsa.PrivateKey
	alpha func() []byte
}

// NewVRFEntropy returns a source proving alpha() with key on every call.
func NewVRFEntropy(key *ecdsa.PrivateKey, alpha func() []byte) *VRFEntropy {
	return &VRFEntropy{key: key, alpha: alpha}
}

// Prove returns the VRF output and proof of alpha.
func (v *VRFEntropy) Prove(alpha []byte) (burn.Bytes32, []byte, error) {
	beta, proof, err := ecvrf.Secp256k1Sha256Tai.Prove(v.key, alpha)
	if err != nil {
		return burn.Bytes32{}, nil, errors.Wrap(err, "vrf prove")
	}
	return burn.BytesToBytes32(beta), proof, nil
}

func (v *VRFEntropy) RandomBytes(ctx context.Context) (burn.Bytes32, error) {
	if err := ctx.Err(); err != nil {
		return burn.Bytes32{}, err
	}
	alpha := v.alpha()
	beta, proof, err := v.Prove(alpha)
	if err != nil {
		return burn.Bytes32{}, err
	}
	logger.Info("seed proved", "alpha", hex.EncodeToString(alpha), "proof", hex.EncodeToString(proof))
	return beta, nil
}

// VerifyVRF checks proof of alpha against pub and returns the seed it proves.
func VerifyVRF(pub *ecdsa.PublicKey, alpha, proof []byte) (burn.Bytes32, error) {
	beta, err := ecvrf.Secp256k1Sha256Tai.Verify(pub, alpha, proof)
	if err != nil {
		return burn.Bytes32{}, errors.Wrap(err, "vrf verify")
	}
	return burn.BytesToBytes32(beta), nil
}
