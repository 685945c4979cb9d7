package dgraph

import (
	log "github.com/sirupsen/logrus"

	"server-rewards-app/internal/app/referral"
)

// UserResp represent user struct returned by dgraph
type UserResp struct {
	UserID int64      `json:"u,omitempty"`
	Links  []UserResp `json:"l,omitempty"`
}

// Walk recursively do fn to every user in user tree.
func (u UserResp) Walk(us []UserResp, depth int, fn func(u UserResp, depth int)) {
	for _, u := range us {
		fn(u, depth)
		if len(u.Links) > 0 {
			nextDepth := depth + 1
			u.Walk(u.Links, nextDepth, fn)
		}
	}
}

// ToNode converts the response into a referral tree at most depth levels deep.
// Users already placed in the tree are dropped.
func (u UserResp) ToNode(depth int) referral.Node {
	visited := map[int64]bool{u.UserID: true}
	return u.toNode(depth, visited)
}

func (u UserResp) toNode(depth int, visited map[int64]bool) referral.Node {
	node := referral.Node{UserID: u.UserID}
	if depth <= 0 {
		return node
	}
	for _, child := range u.Links {
		if visited[child.UserID] {
			log.Warnf("dirty referral data cause circle in relation, uid: %d", child.UserID)
			continue
		}
		visited[child.UserID] = true
		node.Children = append(node.Children, child.toNode(depth-1, visited))
	}
	return node
}

// Count returns how many users the response holds, root included.
func (u UserResp) Count() int {
	n := 0
	u.Walk([]UserResp{u}, 0, func(UserResp, int) { n++ })
	return n
}
