// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package hosted

import (
	"strings"

	"github.com/aumos-ai/wba-identity/did"
	"github.com/aumos-ai/wba-identity/types"
)

// RehostDocument returns a copy of a requested document published under
// hostedDID. Method and service IDs, controllers and verification
// relationships are rewritten from the document's old ID, or from relative
// "#fragment" form, to hostedDID. Keys are kept as submitted so the
// requester can sign for the hosted identity.
func RehostDocument(doc *did.Document, hostedDID string) (*did.Document, error) {
	if doc == nil {
		return nil, &types.ErrRequestRejected{Reason: "no document to host"}
	}
	if err := requireWBA(hostedDID); err != nil {
		return nil, err
	}
	if len(doc.VerificationMethod) == 0 {
		return nil, &types.ErrNoVerificationMethod{DID: hostedDID}
	}

	old := doc.ID
	rewrite := func(ref string) string {
		switch {
		case strings.HasPrefix(ref, "#"):
			return hostedDID + ref
		case old != "" && ref == old:
			return hostedDID
		case old != "" && strings.HasPrefix(ref, old+"#"):
			return hostedDID + ref[len(old):]
		default:
			return ref
		}
	}
	rewriteAll := func(refs []string) {
		for i := range refs {
			refs[i] = rewrite(refs[i])
		}
	}

	out := doc.Clone()
	out.ID = hostedDID
	if out.Controller != "" {
		out.Controller = rewrite(out.Controller)
	}
	if len(out.Context) == 0 {
		out.Context = []string{did.ContextDIDV1}
	}
	for i := range out.VerificationMethod {
		vm := &out.VerificationMethod[i]
		vm.ID = rewrite(vm.ID)
		if vm.Controller == "" || vm.Controller == old {
			vm.Controller = hostedDID
		}
	}
	rewriteAll(out.Authentication)
	rewriteAll(out.AssertionMethod)
	rewriteAll(out.KeyAgreement)
	for i := range out.Service {
		out.Service[i].ID = rewrite(out.Service[i].ID)
	}
	if len(out.Authentication) == 0 {
		out.Authentication = []string{out.VerificationMethod[0].ID}
	}
	return out, nil
}
