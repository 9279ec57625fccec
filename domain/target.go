package domain

type TargetKind string

const (
	TargetUser      TargetKind = "USER"
	TargetUsers     TargetKind = "USERS"
	TargetGroup     TargetKind = "GROUP"
	TargetGroups    TargetKind = "GROUPS"
	TargetBroadcast TargetKind = "BROADCAST"
)

// Target is a tagged variant: exactly one of the fields below is meaningful,
// selected by Kind. Routing by kind is a data lookup in the dispatcher, so a
// new target kind is a new entry, not a new branch scattered across methods.
type Target struct {
	Kind    TargetKind
	User    UserID
	Users   []UserID
	Group   string
	Groups  []string
	Exclude []UserID
}

func UserTarget(user UserID) Target {
	return Target{Kind: TargetUser, User: user}
}

func UsersTarget(users ...UserID) Target {
	return Target{Kind: TargetUsers, Users: users}
}

func GroupTarget(group string) Target {
	return Target{Kind: TargetGroup, Group: group}
}

func GroupsTarget(groups ...string) Target {
	return Target{Kind: TargetGroups, Groups: groups}
}

func BroadcastTarget(exclude ...UserID) Target {
	return Target{Kind: TargetBroadcast, Exclude: exclude}
}
