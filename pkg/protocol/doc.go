// Package protocol 实现 filesharer 的文本线路协议
//
// 消息格式：
//
//	<TYPE> <field1> <field2> ... <fieldN>
//
// 字段以空格分隔，含空白、双引号或反斜杠的字段（以及空字段）使用双引号包裹，
// 内部的 `"`、`\` 以及换行以反斜杠转义。字段含义由类型决定，按位置索引，
// 索引常量见 fields.go。
//
// 此外 Envelope 为不可靠传输提供 DATA/ACK/ERROR 外层封装：
//
//	<KIND> <sourceIp> <sourcePort> <sequenceNumber> <retryCount> <message>
//
// 对所有合法消息 m：Parse(Encode(m)) == m。
package protocol
