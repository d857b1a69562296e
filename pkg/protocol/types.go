package protocol

// MessageType 消息类型
type MessageType int

// 消息类型
const (
	TypeUnknown MessageType = iota
	TypeReg
	TypeRegOK
	TypeUnreg
	TypeUnregOK
	TypeJoin
	TypeJoinOK
	TypeLeave
	TypeLeaveOK
	TypeSer
	TypeSerOK
	TypeError
	TypeEcho
	TypeEchoOK
	TypeSerSuperPeer
	TypeSerSuperPeerOK
	TypeJoinSuperPeer
	TypeJoinSuperPeerOK
	TypeHeartbeat
	TypeHeartbeatOK
	TypeListResources
	TypeListResourcesOK
	TypeListUnstructuredConnections
	TypeListUnstructuredConnectionsOK
	TypeListSuperPeerConnections
	TypeListSuperPeerConnectionsOK
)

// typeInfo 线路代码与最少字段数
type typeInfo struct {
	code      string
	minFields int
}

var typeInfos = map[MessageType]typeInfo{
	TypeReg:                           {"REG", 3},
	TypeRegOK:                         {"REGOK", 1},
	TypeUnreg:                         {"UNREG", 3},
	TypeUnregOK:                       {"UNROK", 1},
	TypeJoin:                          {"JOIN", 2},
	TypeJoinOK:                        {"JOINOK", 3},
	TypeLeave:                         {"LEAVE", 2},
	TypeLeaveOK:                       {"LEAVEOK", 1},
	TypeSer:                           {"SER", 5},
	TypeSerOK:                         {"SEROK", 5},
	TypeError:                         {"ERROR", 0},
	TypeEcho:                          {"ECHO", 0},
	TypeEchoOK:                        {"ECHOK", 0},
	TypeSerSuperPeer:                  {"SERSUPERPEER", 4},
	TypeSerSuperPeerOK:                {"SERSUPERPEEROK", 3},
	TypeJoinSuperPeer:                 {"JOINSUPERPEER", 2},
	TypeJoinSuperPeerOK:               {"JOINSUPERPEEROK", 1},
	TypeHeartbeat:                     {"HEARTBEAT", 2},
	TypeHeartbeatOK:                   {"HEARTBEATOK", 2},
	TypeListResources:                 {"LIST", 2},
	TypeListResourcesOK:               {"LISTOK", 3},
	TypeListUnstructuredConnections:   {"LISTUNSTRUCTUREDCONNECTIONS", 2},
	TypeListUnstructuredConnectionsOK: {"LISTUNSTRUCTUREDCONNECTIONSOK", 3},
	TypeListSuperPeerConnections:      {"LISTSUPERPEERCONNECTIONS", 2},
	TypeListSuperPeerConnectionsOK:    {"LISTSUPERPEERCONNECTIONSOK", 3},
}

var codeToType = func() map[string]MessageType {
	m := make(map[string]MessageType, len(typeInfos))
	for t, info := range typeInfos {
		m[info.code] = t
	}
	return m
}()

// ParseMessageType 将线路代码解析为消息类型
func ParseMessageType(code string) (MessageType, bool) {
	t, ok := codeToType[code]
	return t, ok
}

// Code 返回线路代码
func (t MessageType) Code() string {
	if info, ok := typeInfos[t]; ok {
		return info.code
	}
	return "UNKNOWN"
}

// MinFields 返回该类型要求的最少字段数
func (t MessageType) MinFields() int {
	return typeInfos[t].minFields
}

// String 返回线路代码
func (t MessageType) String() string {
	return t.Code()
}

// MessageTypes 返回所有已知消息类型
func MessageTypes() []MessageType {
	out := make([]MessageType, 0, len(typeInfos))
	for t := TypeReg; t <= TypeListSuperPeerConnectionsOK; t++ {
		out = append(out, t)
	}
	return out
}
