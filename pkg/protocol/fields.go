package protocol

// ============================================================================
//                              字段索引
// ============================================================================

// REG / UNREG
const (
	RegIP       = 0
	RegPort     = 1
	RegUsername = 2
)

// REGOK: 数量（或错误码），随后是 ip port 对
const (
	RegOKCount      = 0
	RegOKNodesStart = 1
)

// UNROK
const (
	UnregOKValue = 0
)

// JOIN / LEAVE / HEARTBEAT / HEARTBEATOK / LIST 及 LIST*CONNECTIONS 请求
const (
	AddrIP   = 0
	AddrPort = 1
)

// JOINOK / LEAVEOK / JOINSUPERPEEROK
const (
	ReplyValue = 0
	ReplyIP    = 1
	ReplyPort  = 2
)

// SER
const (
	SerSourceIP       = 0
	SerSourcePort     = 1
	SerSequenceNumber = 2
	SerHopCount       = 3
	SerQuery          = 4
)

// SEROK
const (
	SerOKCount          = 0
	SerOKIP             = 1
	SerOKPort           = 2
	SerOKSequenceNumber = 3
	SerOKHopCount       = 4
	SerOKNamesStart     = 5
)

// SERSUPERPEER
const (
	SerSuperPeerSourceIP       = 0
	SerSuperPeerSourcePort     = 1
	SerSuperPeerSequenceNumber = 2
	SerSuperPeerHopCount       = 3
)

// SERSUPERPEEROK
const (
	SerSuperPeerOKIP       = 0
	SerSuperPeerOKPort     = 1
	SerSuperPeerOKHopCount = 2
)

// JOINSUPERPEER: ip port 以及请求方拥有的资源名
const (
	JoinSuperPeerIP         = 0
	JoinSuperPeerPort       = 1
	JoinSuperPeerNamesStart = 2
)

// LISTOK: ip port count names...
const (
	ListOKIP         = 0
	ListOKPort       = 1
	ListOKCount      = 2
	ListOKNamesStart = 3
)

// LIST*CONNECTIONSOK: ip port count (ip port)...
const (
	ListConnectionsOKIP         = 0
	ListConnectionsOKPort       = 1
	ListConnectionsOKCount      = 2
	ListConnectionsOKNodesStart = 3
)

// ============================================================================
//                              字段取值
// ============================================================================

const (
	// ValueSuccess 通用成功值
	ValueSuccess = "0"
	// ValueError 通用失败值
	ValueError = "9999"

	// RegOKFailed 注册失败（未知错误）
	RegOKFailed = "9999"
	// RegOKAlreadyRegistered 相同 ip:port 与用户名已经注册
	RegOKAlreadyRegistered = "9998"
	// RegOKAlreadyOccupied ip:port 已被其他用户占用
	RegOKAlreadyOccupied = "9997"
	// RegOKFull 目录服务器已满
	RegOKFull = "9996"

	// JoinSuperPeerOKFull 超级节点的分配池已满
	JoinSuperPeerOKFull = "9999"
	// JoinSuperPeerOKNotSuperPeer 目标不是超级节点
	JoinSuperPeerOKNotSuperPeer = "9998"

	// NotFoundIP 查询未命中时的 ip 占位
	NotFoundIP = "0.0.0.0"
	// NotFoundPort 查询未命中时的端口占位
	NotFoundPort = "0"

	// InitialHopCount 新建查询的初始跳数
	InitialHopCount = 0
)
