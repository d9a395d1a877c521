// Package member defines the Member record and the deterministic
// orderings every node in the cluster computes identically: address
// order, canonical (unique-address) order, age order and leader order.
package member

import (
	"errors"
	"sort"
	"strings"

	"github.com/nimbus-cluster/membercore/address"
	"github.com/nimbus-cluster/membercore/status"
)

// UpNumberNotYetUp is the sentinel recorded in Member.UpNumber before a
// member's first promotion to Up (spec §3: "sentinel INT32_MAX means
// not yet Up").
const UpNumberNotYetUp int32 = 1<<31 - 1

// DataCenterRolePrefix marks the one role that encodes a member's
// datacenter (spec §3).
const DataCenterRolePrefix = "dc-"

// DefaultDataCenter is the datacenter name cmd/membernode builds the
// local node's dc- role from when no roles are configured, and the
// value DataCenter falls back to for a Member with no dc- role (such as
// a zero Member).
const DefaultDataCenter = "default"

// ErrMissingDatacenterRole is returned by New when roles contains no
// role beginning with DataCenterRolePrefix, or more than one.
var ErrMissingDatacenterRole = errors.New("member: roles must contain exactly one datacenter role")

// AppVersion is an opaque, comparable application-version string
// advertised to peers (spec §6, default "0.0.0").
type AppVersion string

const DefaultAppVersion AppVersion = "0.0.0"

// Member is a record binding a UniqueAddress, status, roles and
// app-version. Hash and equality as a set element depend only on
// UniqueAddress (spec §3) — Equal below implements that, and callers
// that need a map key should key by UniqueAddress directly rather than
// by Member.
type Member struct {
	UniqueAddress address.UniqueAddress
	UpNumber      int32
	Status        status.MemberStatus
	Roles         []string
	AppVersion    AppVersion
}

// New constructs a Joining member with UpNumber = UpNumberNotYetUp, per
// spec §4.3's newJoining. Roles must contain exactly one datacenter
// role or New returns ErrMissingDatacenterRole (spec §7).
func New(ua address.UniqueAddress, roles []string, appVersion AppVersion) (Member, error) {
	if countDatacenterRoles(roles) != 1 {
		return Member{}, ErrMissingDatacenterRole
	}
	rolesCopy := make([]string, len(roles))
	copy(rolesCopy, roles)
	sort.Strings(rolesCopy)
	return Member{
		UniqueAddress: ua,
		UpNumber:      UpNumberNotYetUp,
		Status:        status.Joining,
		Roles:         rolesCopy,
		AppVersion:    appVersion,
	}, nil
}

func countDatacenterRoles(roles []string) int {
	n := 0
	for _, r := range roles {
		if strings.HasPrefix(r, DataCenterRolePrefix) {
			n++
		}
	}
	return n
}

// Address returns the member's Address, stripping the unique uid.
func (m Member) Address() address.Address {
	return m.UniqueAddress.Address
}

// DataCenter returns the datacenter encoded in the member's roles, per
// spec §3. Every Member constructed through New carries exactly one
// dc- role, so this only falls back to DefaultDataCenter for a zero
// Member.
func (m Member) DataCenter() string {
	for _, r := range m.Roles {
		if dc, ok := strings.CutPrefix(r, DataCenterRolePrefix); ok {
			return dc
		}
	}
	return DefaultDataCenter
}

// HasRole reports whether the member carries the given role.
func (m Member) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PromoteToUp is spec §4.3's promoteToUp: precondition Joining or
// WeaklyUp, assigns UpNumber and transitions to Up.
func (m Member) PromoteToUp(upNumber int32) (Member, error) {
	if m.Status != status.Joining && m.Status != status.WeaklyUp {
		return m, &status.InvalidTransitionError{From: m.Status, To: status.Up}
	}
	next, err := status.Transition(m.Status, status.Up)
	if err != nil {
		return m, err
	}
	out := m
	out.Status = next
	out.UpNumber = upNumber
	return out, nil
}

// WithStatus is spec §4.3's withStatus: a checked transition.
func (m Member) WithStatus(to status.MemberStatus) (Member, error) {
	next, err := status.Transition(m.Status, to)
	if err != nil {
		return m, err
	}
	out := m
	out.Status = next
	return out, nil
}

// Equal implements the set-element equality of spec §3: two Members
// with the same UniqueAddress are equal regardless of status.
func Equal(a, b Member) bool {
	return a.UniqueAddress == b.UniqueAddress
}
