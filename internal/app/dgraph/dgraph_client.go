package dgraph

import (
	"github.com/dgraph-io/dgo/v200"
	"github.com/dgraph-io/dgo/v200/protos/api"
	"google.golang.org/grpc"
)

// Mirror is a read-only view of the referral graph kept in dGraph.
type Mirror struct {
	conn *grpc.ClientConn
	dg   *dgo.Dgraph
}

// Open connecting to dGraph.
func Open(rpcAddr string) (*Mirror, error) {
	conn, err := grpc.Dial(rpcAddr, grpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	dc := api.NewDgraphClient(conn)
	return &Mirror{conn: conn, dg: dgo.NewDgraphClient(dc)}, nil
}

func (m *Mirror) Close() error {
	return m.conn.Close()
}
