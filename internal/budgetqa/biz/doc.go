// Package biz 实现预算问答的业务流程：
// 导入（提取、分块、打标签、向量化、写入向量库）与在线问答（检索、生成、缓存）。
package biz
